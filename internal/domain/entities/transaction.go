package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the semantic classification of a transaction
type TransactionType string

const (
	TypeContract   TransactionType = "contract"
	TypeToken      TransactionType = "token-generic"
	TypeNative     TransactionType = "native"
	TypeDeployment TransactionType = "deployment"
	TypeSelf       TransactionType = "self"
	TypeUnknown    TransactionType = "unknown"
)

// TransferDirection is the overall direction of value for the tracked wallet.
// Empty means neither.
type TransferDirection string

const (
	TransferSent     TransferDirection = "sent"
	TransferReceived TransferDirection = "received"
)

// Relation is the direction of a single transfer relative to the wallet
type Relation string

const (
	RelationIn         Relation = "in"
	RelationOut        Relation = "out"
	RelationSelf       Relation = "self"
	RelationDeployment Relation = "deployment"
	RelationUnknown    Relation = "unknown"
)

// Argument describes one decoded call argument
type Argument struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DecodedCall is call metadata decoded from transaction input
type DecodedCall struct {
	Source            string     `json:"source"`
	FunctionName      string     `json:"function_name"`
	FunctionSignature string     `json:"function_signature"`
	Arguments         []Argument `json:"arguments"`
}

// FullTransaction is the classified view of every transfer sharing a hash
type FullTransaction struct {
	Hash               string                     `json:"hash"`
	BlockNum           string                     `json:"block_num"`
	Type               TransactionType            `json:"type"`
	IsSelfTransaction  bool                       `json:"is_self_transaction"`
	SelfTransferAmount decimal.NullDecimal        `json:"self_transfer_amount"`
	SelfTransferAsset  string                     `json:"self_transfer_asset,omitempty"`
	IsTokenTransferred bool                       `json:"is_token_transferred"`
	NetValueChanges    map[string]decimal.Decimal `json:"net_value_changes"`
	TransferDirection  TransferDirection          `json:"transfer_direction,omitempty"`
	Decoded            *DecodedCall               `json:"decoded,omitempty"`
	Transfers          []Transfer                 `json:"transfers"`
}

// Clone returns a copy that shares no maps or slices with tx
func (tx FullTransaction) Clone() FullTransaction {
	out := tx
	if tx.NetValueChanges != nil {
		out.NetValueChanges = make(map[string]decimal.Decimal, len(tx.NetValueChanges))
		for k, v := range tx.NetValueChanges {
			out.NetValueChanges[k] = v
		}
	}
	if tx.Transfers != nil {
		out.Transfers = append([]Transfer(nil), tx.Transfers...)
	}
	if tx.Decoded != nil {
		decoded := *tx.Decoded
		decoded.Arguments = append([]Argument(nil), tx.Decoded.Arguments...)
		out.Decoded = &decoded
	}
	return out
}

// ChainTransaction is a transaction as returned by a hash lookup
type ChainTransaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Input       []byte `json:"input"`
	Value       string `json:"value"`
	BlockNumber uint64 `json:"block_number"`
}

// StoredTransaction is a persisted classification snapshot
type StoredTransaction struct {
	WalletAddress string          `json:"wallet_address"`
	Transaction   FullTransaction `json:"transaction"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
