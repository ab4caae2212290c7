package testutil

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
)

// Common test addresses
const (
	AliceAddress    = "0x1111111111111111111111111111111111111111"
	BobAddress      = "0x2222222222222222222222222222222222222222"
	CharlieAddr     = "0x3333333333333333333333333333333333333333"
	ContractAddress = "0x4444444444444444444444444444444444444444"
	USDCAddress     = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

// TestHash returns a deterministic 32-byte transaction hash for n
func TestHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// TestAddress returns a deterministic lowercase wallet address for n
func TestAddress(n int) string {
	return fmt.Sprintf("0x%040x", 0x9000+n)
}

// CreateTestTransfer creates a test transfer with default values:
// 1 ETH external transfer from Alice to Bob in block 0x10
func CreateTestTransfer(opts ...TransferOption) entities.Transfer {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC).Format(time.RFC3339)
	t := entities.Transfer{
		Hash:     TestHash(1),
		UniqueID: TestHash(1) + ":external",
		BlockNum: "0x10",
		From:     AliceAddress,
		To:       BobAddress,
		Value:    decimal.NewNullDecimal(decimal.NewFromInt(1)),
		Asset:    "ETH",
		Category: entities.CategoryExternal,
		Metadata: &entities.TransferMetadata{BlockTimestamp: &ts},
	}

	for _, opt := range opts {
		opt(&t)
	}

	return t
}

type TransferOption func(*entities.Transfer)

func WithHash(hash string) TransferOption {
	return func(t *entities.Transfer) {
		t.Hash = hash
		t.UniqueID = hash + ":" + string(t.Category)
	}
}

func WithBlock(num uint64) TransferOption {
	return func(t *entities.Transfer) {
		t.BlockNum = fmt.Sprintf("0x%x", num)
	}
}

func WithFrom(addr string) TransferOption {
	return func(t *entities.Transfer) {
		t.From = addr
	}
}

func WithTo(addr string) TransferOption {
	return func(t *entities.Transfer) {
		t.To = addr
	}
}

// WithValue sets a decimal value; panics on malformed input
func WithValue(val string) TransferOption {
	return func(t *entities.Transfer) {
		t.Value = decimal.NewNullDecimal(decimal.RequireFromString(val))
	}
}

// WithNullValue marks the value as unknown, as for NFTs
func WithNullValue() TransferOption {
	return func(t *entities.Transfer) {
		t.Value = decimal.NullDecimal{}
	}
}

func WithAsset(asset string) TransferOption {
	return func(t *entities.Transfer) {
		t.Asset = asset
	}
}

func WithCategory(c entities.TransferCategory) TransferOption {
	return func(t *entities.Transfer) {
		t.Category = c
	}
}

// AsToken turns the transfer into an erc20 transfer of the given token contract
func AsToken(symbol, contract string) TransferOption {
	return func(t *entities.Transfer) {
		t.Category = entities.CategoryERC20
		t.Asset = symbol
		decimals := "0x6"
		t.RawContract = &entities.RawContract{Address: &contract, Decimal: &decimals}
	}
}
