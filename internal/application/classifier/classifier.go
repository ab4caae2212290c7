package classifier

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
	"github.com/bimakw/wallet-activity/internal/metrics"
)

const (
	// AssetUnknownToken keys erc20 value changes whose symbol is unknown
	AssetUnknownToken = "unknown-token"
	// AssetNative keys native currency value changes without a symbol
	AssetNative = "NATIVE"
)

// CallDecoder decodes transaction input against one ABI
type CallDecoder interface {
	Decode(input []byte) (*entities.DecodedCall, error)
}

// SelfTransferPolicy picks which self transfer supplies the self-transfer amount
type SelfTransferPolicy string

const (
	SelfTransferLast    SelfTransferPolicy = "last"
	SelfTransferFirst   SelfTransferPolicy = "first"
	SelfTransferHighest SelfTransferPolicy = "highest"
)

// ParseSelfTransferPolicy validates a policy name; empty means last
func ParseSelfTransferPolicy(s string) (SelfTransferPolicy, error) {
	switch p := SelfTransferPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SelfTransferLast, nil
	case SelfTransferLast, SelfTransferFirst, SelfTransferHighest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown self transfer policy %q", s)
	}
}

// Classifier turns every raw transfer sharing one hash into a FullTransaction
type Classifier struct {
	contractDecoder CallDecoder
	tokenDecoder    CallDecoder
	policy          SelfTransferPolicy
	logger          *zap.Logger
}

// NewClassifier creates a new classifier. Either decoder may be nil.
func NewClassifier(contractDecoder, tokenDecoder CallDecoder, policy SelfTransferPolicy, logger *zap.Logger) *Classifier {
	if policy == "" {
		policy = SelfTransferLast
	}
	return &Classifier{
		contractDecoder: contractDecoder,
		tokenDecoder:    tokenDecoder,
		policy:          policy,
		logger:          logger,
	}
}

// RelationOf returns the direction of t relative to wallet
func RelationOf(wallet string, t entities.Transfer) entities.Relation {
	switch {
	case t.From == "":
		return entities.RelationUnknown
	case t.To == "":
		return entities.RelationDeployment
	case strings.EqualFold(t.To, t.From):
		return entities.RelationSelf
	case strings.EqualFold(t.From, wallet):
		return entities.RelationOut
	case strings.EqualFold(t.To, wallet):
		return entities.RelationIn
	default:
		return entities.RelationUnknown
	}
}

// AssetKey returns the key a transfer's value is accumulated under
func AssetKey(t entities.Transfer) string {
	if t.Asset != "" {
		return t.Asset
	}
	if t.Category == entities.CategoryERC20 {
		return AssetUnknownToken
	}
	return AssetNative
}

// Classify classifies the transfers of one transaction for wallet.
// contract is the known contract address and may be empty.
func (c *Classifier) Classify(wallet, contract string, transfers []entities.Transfer) (*entities.FullTransaction, error) {
	return c.ClassifyWithInput(wallet, contract, transfers, nil)
}

// ClassifyWithInput classifies like Classify and also decodes the
// transaction's input, first against the contract ABI then the ERC-20 ABI.
// Decode failures fall through to the next ABI and are never returned.
func (c *Classifier) ClassifyWithInput(wallet, contract string, transfers []entities.Transfer, input []byte) (*entities.FullTransaction, error) {
	if len(transfers) == 0 {
		return nil, apperrors.InvalidInputError(nil, "At least one transfer is required")
	}

	owned := make([]entities.Transfer, len(transfers))
	copy(owned, transfers)

	hash := owned[0].Hash
	for _, t := range owned[1:] {
		if !strings.EqualFold(t.Hash, hash) {
			c.logger.Warn("Classifying transfers with mismatched hashes",
				zap.String("hash", hash),
				zap.String("other", t.Hash),
			)
			break
		}
	}

	relations := make([]entities.Relation, len(owned))
	for i, t := range owned {
		relations[i] = RelationOf(wallet, t)
	}

	tx := &entities.FullTransaction{
		Hash:      hash,
		BlockNum:  owned[0].BlockNum,
		Transfers: owned,
	}
	tx.NetValueChanges, tx.TransferDirection = netValueChanges(owned, relations)

	for _, t := range owned {
		if t.Category == entities.CategoryERC20 {
			tx.IsTokenTransferred = true
			break
		}
	}

	if hasRelation(relations, entities.RelationSelf) {
		tx.IsSelfTransaction = true
		if idx := c.selfTransferIndex(owned, relations); idx >= 0 {
			tx.SelfTransferAmount = owned[idx].Value
			tx.SelfTransferAsset = AssetKey(owned[idx])
		}
	}

	decodedContract, decodedToken := c.decode(tx, input)

	switch {
	case touchesContract(owned, contract) || decodedContract:
		tx.Type = entities.TypeContract
	case hasRelation(relations, entities.RelationDeployment):
		tx.Type = entities.TypeDeployment
	case hasRelation(relations, entities.RelationSelf):
		tx.Type = entities.TypeSelf
	case tx.IsTokenTransferred || decodedToken:
		tx.Type = entities.TypeToken
	case len(tx.NetValueChanges) > 0:
		tx.Type = entities.TypeNative
	default:
		tx.Type = entities.TypeUnknown
	}

	metrics.TransactionsClassified.WithLabelValues(string(tx.Type)).Inc()
	return tx, nil
}

// decode tries the contract ABI, then the token ABI
func (c *Classifier) decode(tx *entities.FullTransaction, input []byte) (contract, token bool) {
	if len(input) == 0 {
		return false, false
	}

	if c.contractDecoder != nil {
		call, err := c.contractDecoder.Decode(input)
		if err == nil && call != nil {
			tx.Decoded = call
			return true, false
		}
		c.logger.Debug("Input does not match contract ABI", zap.String("hash", tx.Hash), zap.Error(err))
	}

	if c.tokenDecoder != nil {
		call, err := c.tokenDecoder.Decode(input)
		if err == nil && call != nil {
			tx.Decoded = call
			return false, true
		}
		c.logger.Debug("Input does not match token ABI", zap.String("hash", tx.Hash), zap.Error(err))
	}

	return false, false
}

// selfTransferIndex picks the positive-valued self transfer per policy, -1 when none
func (c *Classifier) selfTransferIndex(transfers []entities.Transfer, relations []entities.Relation) int {
	picked := -1
	for i, t := range transfers {
		if relations[i] != entities.RelationSelf || !t.Value.Valid || !t.Value.Decimal.IsPositive() {
			continue
		}
		switch c.policy {
		case SelfTransferFirst:
			if picked < 0 {
				picked = i
			}
		case SelfTransferHighest:
			if picked < 0 || t.Value.Decimal.GreaterThan(transfers[picked].Value.Decimal) {
				picked = i
			}
		default:
			picked = i
		}
	}
	return picked
}

// netValueChanges sums positive values per asset, received minus sent.
// Zero entries are removed; an empty result is nil.
func netValueChanges(transfers []entities.Transfer, relations []entities.Relation) (map[string]decimal.Decimal, entities.TransferDirection) {
	changes := make(map[string]decimal.Decimal)
	for i, t := range transfers {
		if !t.Value.Valid || !t.Value.Decimal.IsPositive() {
			continue
		}
		key := AssetKey(t)
		switch relations[i] {
		case entities.RelationIn:
			changes[key] = changes[key].Add(t.Value.Decimal)
		case entities.RelationOut:
			changes[key] = changes[key].Sub(t.Value.Decimal)
		}
	}

	total := decimal.Zero
	for key, v := range changes {
		if v.IsZero() {
			delete(changes, key)
			continue
		}
		total = total.Add(v)
	}

	if len(changes) == 0 {
		return nil, ""
	}

	switch total.Sign() {
	case -1:
		return changes, entities.TransferSent
	case 1:
		return changes, entities.TransferReceived
	default:
		return changes, ""
	}
}

func touchesContract(transfers []entities.Transfer, contract string) bool {
	if contract == "" {
		return false
	}
	for _, t := range transfers {
		if strings.EqualFold(t.From, contract) || strings.EqualFold(t.To, contract) {
			return true
		}
	}
	return false
}

func hasRelation(relations []entities.Relation, want entities.Relation) bool {
	for _, r := range relations {
		if r == want {
			return true
		}
	}
	return false
}
