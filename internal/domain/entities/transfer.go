package entities

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransferCategory is the indexing API's transfer classification
type TransferCategory string

const (
	CategoryExternal   TransferCategory = "external"
	CategoryInternal   TransferCategory = "internal"
	CategoryERC20      TransferCategory = "erc20"
	CategoryERC721     TransferCategory = "erc721"
	CategoryERC1155    TransferCategory = "erc1155"
	CategorySpecialNFT TransferCategory = "specialnft"
)

// AllCategories returns every category the indexing API understands
func AllCategories() []TransferCategory {
	return []TransferCategory{
		CategoryExternal,
		CategoryInternal,
		CategoryERC20,
		CategoryERC721,
		CategoryERC1155,
		CategorySpecialNFT,
	}
}

// ParseCategory validates a category name
func ParseCategory(s string) (TransferCategory, bool) {
	c := TransferCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCategories() {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// IsNative reports whether the category moves the chain's native currency
func (c TransferCategory) IsNative() bool {
	return c == CategoryExternal || c == CategoryInternal
}

// RawContract holds the undecoded contract-level value of a transfer
type RawContract struct {
	Value   *string `json:"value"`
	Address *string `json:"address"`
	Decimal *string `json:"decimal"`
}

// TransferMetadata holds block-level metadata of a transfer
type TransferMetadata struct {
	BlockTimestamp *string `json:"blockTimestamp"`
}

// Transfer is a raw transfer record as returned by the indexing API.
// Empty strings stand for null; an empty To marks a contract deployment.
type Transfer struct {
	Hash        string              `json:"hash"`
	UniqueID    string              `json:"uniqueId,omitempty"`
	BlockNum    string              `json:"blockNum"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	Value       decimal.NullDecimal `json:"value"`
	Asset       string              `json:"asset"`
	Category    TransferCategory    `json:"category"`
	RawContract *RawContract        `json:"rawContract,omitempty"`
	Metadata    *TransferMetadata   `json:"metadata,omitempty"`
}

// BlockNumber parses the hex block number, returning 0 when absent or invalid
func (t Transfer) BlockNumber() uint64 {
	return ParseBlockNumber(t.BlockNum)
}

// Timestamp returns the block timestamp when the API supplied one
func (t Transfer) Timestamp() (time.Time, bool) {
	if t.Metadata == nil || t.Metadata.BlockTimestamp == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, *t.Metadata.BlockTimestamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// IsZeroValueNative reports a native-currency entry carrying exactly zero value
func (t Transfer) IsZeroValueNative() bool {
	return t.Category.IsNative() && t.Value.Valid && t.Value.Decimal.IsZero()
}

// ParseBlockNumber parses a 0x-prefixed hex or plain decimal block number
func ParseBlockNumber(s string) uint64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0
		}
		return n
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
