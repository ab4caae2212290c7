package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	"github.com/bimakw/wallet-activity/internal/domain/repositories"
)

func TestMockTransferSource_FiltersAndPages(t *testing.T) {
	source := NewMockTransferSource()
	source.AddTransfers(
		CreateTestTransfer(WithHash(TestHash(1)), WithBlock(10), WithFrom(AliceAddress), WithTo(BobAddress)),
		CreateTestTransfer(WithHash(TestHash(2)), WithBlock(30), WithFrom(AliceAddress), WithTo(CharlieAddr)),
		CreateTestTransfer(WithHash(TestHash(3)), WithBlock(20), WithFrom(AliceAddress), WithTo(BobAddress)),
		CreateTestTransfer(WithHash(TestHash(4)), WithBlock(40), WithFrom(BobAddress), WithTo(AliceAddress)),
	)

	ctx := context.Background()

	page, err := source.GetAssetTransfers(ctx, repositories.TransferQuery{
		FromAddress: AliceAddress,
		Order:       repositories.OrderDescending,
		MaxCount:    2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(page.Transfers))
	}
	if page.Transfers[0].BlockNumber() != 30 || page.Transfers[1].BlockNumber() != 20 {
		t.Errorf("expected blocks 30, 20 got %d, %d", page.Transfers[0].BlockNumber(), page.Transfers[1].BlockNumber())
	}
	if page.PageKey != "offset-2" {
		t.Errorf("expected page key offset-2, got %q", page.PageKey)
	}

	page, err = source.GetAssetTransfers(ctx, repositories.TransferQuery{
		FromAddress: AliceAddress,
		Order:       repositories.OrderDescending,
		MaxCount:    2,
		PageKey:     page.PageKey,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(page.Transfers))
	}
	if page.PageKey != "" {
		t.Errorf("expected end of data, got page key %q", page.PageKey)
	}

	if source.CallCount() != 2 {
		t.Errorf("expected 2 calls, got %d", source.CallCount())
	}
}

func TestMockTransferSource_CustomFunc(t *testing.T) {
	source := NewMockTransferSource()
	expectedErr := errors.New("custom error")
	source.GetAssetTransfersFunc = func(ctx context.Context, q repositories.TransferQuery) (*repositories.TransferPage, error) {
		return nil, expectedErr
	}

	_, err := source.GetAssetTransfers(context.Background(), repositories.TransferQuery{ToAddress: AliceAddress})
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected custom error, got %v", err)
	}
	if len(source.Queries()) != 1 || source.Queries()[0].ToAddress != AliceAddress {
		t.Errorf("expected query to be recorded")
	}
}

func TestMockTransactionLookup_MissingHashIsNil(t *testing.T) {
	lookup := NewMockTransactionLookup()
	lookup.AddTransaction(&entities.ChainTransaction{Hash: TestHash(1), Input: []byte{0x01}})

	txs, err := lookup.GetTransactionsByHash(context.Background(), []string{TestHash(1), TestHash(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 results, got %d", len(txs))
	}
	if txs[0] == nil || txs[1] != nil {
		t.Errorf("expected found then nil, got %v, %v", txs[0], txs[1])
	}
}

func TestMockTransactionRepository_UpsertAndList(t *testing.T) {
	repo := NewMockTransactionRepository()
	ctx := context.Background()

	err := repo.Upsert(ctx, AliceAddress, []entities.FullTransaction{
		{Hash: TestHash(1), BlockNum: "0x1"},
		{Hash: TestHash(2), BlockNum: "0x5"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// replacing by hash keeps the count stable
	err = repo.Upsert(ctx, AliceAddress, []entities.FullTransaction{{Hash: TestHash(1), BlockNum: "0x1", Type: entities.TypeNative}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, _ := repo.CountByWallet(ctx, AliceAddress)
	if count != 2 {
		t.Errorf("expected 2 stored, got %d", count)
	}

	list, _ := repo.ListByWallet(ctx, AliceAddress, 10, 0)
	if len(list) != 2 || list[0].Transaction.Hash != TestHash(2) {
		t.Errorf("expected most recent block first, got %+v", list)
	}

	stored, _ := repo.GetByHash(ctx, AliceAddress, TestHash(1))
	if stored == nil || stored.Transaction.Type != entities.TypeNative {
		t.Errorf("expected replaced snapshot, got %+v", stored)
	}
}

func TestCreateTestTransfer_Options(t *testing.T) {
	tr := CreateTestTransfer(
		WithHash(TestHash(7)),
		WithBlock(255),
		WithValue("2.5"),
		AsToken("USDC", USDCAddress),
	)

	if tr.BlockNum != "0xff" {
		t.Errorf("expected block 0xff, got %s", tr.BlockNum)
	}
	if tr.Category != entities.CategoryERC20 || tr.Asset != "USDC" {
		t.Errorf("expected USDC erc20, got %s %s", tr.Category, tr.Asset)
	}
	if tr.RawContract == nil || *tr.RawContract.Address != USDCAddress {
		t.Errorf("expected raw contract address")
	}
	if tr.Value.Decimal.String() != "2.5" {
		t.Errorf("expected value 2.5, got %s", tr.Value.Decimal.String())
	}

	nft := CreateTestTransfer(WithNullValue(), WithCategory(entities.CategoryERC721))
	if nft.Value.Valid {
		t.Errorf("expected null value")
	}
}
