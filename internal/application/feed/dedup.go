package feed

import (
	"sort"
	"strings"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
)

// DeduplicateByHash drops zero-value native entries from every hash group that
// also carries an erc20 entry. All other entries are kept in order; entries
// without a hash are never grouped. Returns the kept entries and the number dropped.
func DeduplicateByHash(feed []entities.MergedTransfer) ([]entities.MergedTransfer, int) {
	hasToken := make(map[string]bool)
	for _, t := range feed {
		if t.Hash != "" && t.Category == entities.CategoryERC20 {
			hasToken[strings.ToLower(t.Hash)] = true
		}
	}

	result := make([]entities.MergedTransfer, 0, len(feed))
	dropped := 0
	for _, t := range feed {
		if t.Hash != "" && hasToken[strings.ToLower(t.Hash)] && t.IsZeroValueNative() {
			dropped++
			continue
		}
		result = append(result, t)
	}
	return result, dropped
}

// SortByBlockDesc orders feed most recent block first. Equal blocks keep their
// relative order.
func SortByBlockDesc(feed []entities.MergedTransfer) {
	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].BlockNumber() > feed[j].BlockNumber()
	})
}

// GroupByHash groups transfers by lowercase hash, preserving first-seen order
// of the hashes. Transfers without a hash each form their own group.
func GroupByHash(transfers []entities.MergedTransfer) [][]entities.MergedTransfer {
	index := make(map[string]int)
	groups := make([][]entities.MergedTransfer, 0)
	for _, t := range transfers {
		if t.Hash == "" {
			groups = append(groups, []entities.MergedTransfer{t})
			continue
		}
		key := strings.ToLower(t.Hash)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return groups
}
