package classifier

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
	"github.com/bimakw/wallet-activity/internal/testutil"
)

const wallet = testutil.AliceAddress

func newTestClassifier() *Classifier {
	return NewClassifier(nil, nil, SelfTransferLast, zap.NewNop())
}

func decoderReturning(call *entities.DecodedCall) *testutil.MockCallDecoder {
	d := testutil.NewMockCallDecoder()
	d.DecodeFunc = func(input []byte) (*entities.DecodedCall, error) {
		return call, nil
	}
	return d
}

func failingDecoder() *testutil.MockCallDecoder {
	d := testutil.NewMockCallDecoder()
	d.DecodeFunc = func(input []byte) (*entities.DecodedCall, error) {
		return nil, apperrors.DecodeError(errors.New("no method with id"), "Failed to decode input")
	}
	return d
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestRelationOf(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want entities.Relation
	}{
		{"missing from", "", testutil.BobAddress, entities.RelationUnknown},
		{"missing from and to", "", "", entities.RelationUnknown},
		{"deployment", wallet, "", entities.RelationDeployment},
		{"self", wallet, wallet, entities.RelationSelf},
		{"self other wallet", testutil.BobAddress, testutil.BobAddress, entities.RelationSelf},
		{"self mixed case", "0xABCDEF", "0xabcdef", entities.RelationSelf},
		{"out", wallet, testutil.BobAddress, entities.RelationOut},
		{"in", testutil.BobAddress, wallet, entities.RelationIn},
		{"unrelated", testutil.BobAddress, testutil.CharlieAddr, entities.RelationUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := testutil.CreateTestTransfer(testutil.WithFrom(tt.from), testutil.WithTo(tt.to))
			assert.Equal(t, tt.want, RelationOf(wallet, tr))
		})
	}
}

func TestAssetKey(t *testing.T) {
	assert.Equal(t, "ETH", AssetKey(testutil.CreateTestTransfer()))
	assert.Equal(t, AssetUnknownToken, AssetKey(testutil.CreateTestTransfer(testutil.AsToken("", testutil.USDCAddress))))
	assert.Equal(t, AssetNative, AssetKey(testutil.CreateTestTransfer(testutil.WithAsset(""))))
	assert.Equal(t, AssetNative, AssetKey(testutil.CreateTestTransfer(testutil.WithAsset(""), testutil.WithCategory(entities.CategoryERC721))))
}

func TestClassify_IncomingNative(t *testing.T) {
	c := newTestClassifier()

	tx, err := c.Classify(wallet, testutil.ContractAddress, []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(wallet), testutil.WithValue("2")),
	})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeNative, tx.Type)
	assert.Equal(t, entities.TransferReceived, tx.TransferDirection)
	require.Len(t, tx.NetValueChanges, 1)
	assertDecimal(t, "2", tx.NetValueChanges["ETH"])
	assert.False(t, tx.IsSelfTransaction)
	assert.False(t, tx.IsTokenTransferred)
	assert.Equal(t, testutil.TestHash(1), tx.Hash)
	assert.Equal(t, "0x10", tx.BlockNum)
}

func TestClassify_OutgoingNative(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithValue("1.5")),
	})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeNative, tx.Type)
	assert.Equal(t, entities.TransferSent, tx.TransferDirection)
	assertDecimal(t, "-1.5", tx.NetValueChanges["ETH"])
}

func TestClassify_SelfTransfer(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, testutil.ContractAddress, []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(wallet), testutil.WithValue("5"), testutil.WithAsset("ETH")),
	})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeSelf, tx.Type)
	assert.True(t, tx.IsSelfTransaction)
	require.True(t, tx.SelfTransferAmount.Valid)
	assertDecimal(t, "5", tx.SelfTransferAmount.Decimal)
	assert.Equal(t, "ETH", tx.SelfTransferAsset)
	// a self transfer moves nothing in or out
	assert.Nil(t, tx.NetValueChanges)
	assert.Empty(t, tx.TransferDirection)
}

func TestClassify_SelfTransferPolicies(t *testing.T) {
	transfers := []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(wallet), testutil.WithValue("5"), testutil.WithAsset("ETH")),
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(wallet), testutil.WithValue("8"), testutil.AsToken("USDC", testutil.USDCAddress)),
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(wallet), testutil.WithValue("3"), testutil.WithAsset("DAI")),
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(wallet), testutil.WithNullValue(), testutil.WithCategory(entities.CategoryERC721)),
	}

	tests := []struct {
		policy    SelfTransferPolicy
		wantValue string
		wantAsset string
	}{
		{SelfTransferLast, "3", "DAI"},
		{SelfTransferFirst, "5", "ETH"},
		{SelfTransferHighest, "8", "USDC"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			c := NewClassifier(nil, nil, tt.policy, zap.NewNop())
			tx, err := c.Classify(wallet, "", transfers)
			require.NoError(t, err)

			assert.Equal(t, entities.TypeSelf, tx.Type)
			assertDecimal(t, tt.wantValue, tx.SelfTransferAmount.Decimal)
			assert.Equal(t, tt.wantAsset, tx.SelfTransferAsset)
		})
	}
}

func TestClassify_SelfTransferWithoutPositiveValue(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(wallet), testutil.WithValue("0")),
	})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeSelf, tx.Type)
	assert.True(t, tx.IsSelfTransaction)
	assert.False(t, tx.SelfTransferAmount.Valid)
	assert.Empty(t, tx.SelfTransferAsset)
}

func TestClassify_ContractTakesPrecedenceOverToken(t *testing.T) {
	h := testutil.TestHash(9)
	tx, err := newTestClassifier().Classify(wallet, testutil.ContractAddress, []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithHash(h), testutil.WithTo(testutil.ContractAddress), testutil.WithValue("0")),
		testutil.CreateTestTransfer(testutil.WithHash(h), testutil.WithTo(testutil.ContractAddress), testutil.AsToken("USDC", testutil.USDCAddress), testutil.WithValue("10")),
	})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeContract, tx.Type)
	assert.True(t, tx.IsTokenTransferred)
	assertDecimal(t, "-10", tx.NetValueChanges["USDC"])
}

func TestClassify_ContractMatchIsCaseInsensitive(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.USDCAddress), testutil.WithTo(wallet)),
	})
	require.NoError(t, err)
	assert.Equal(t, entities.TypeContract, tx.Type)
}

func TestClassify_DeploymentBeatsSelfAndToken(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithTo("")),
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(wallet)),
		testutil.CreateTestTransfer(testutil.AsToken("USDC", testutil.USDCAddress)),
	})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeDeployment, tx.Type)
	assert.True(t, tx.IsSelfTransaction)
	assert.True(t, tx.IsTokenTransferred)
}

func TestClassify_SelfBeatsToken(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(wallet), testutil.AsToken("USDC", testutil.USDCAddress)),
	})
	require.NoError(t, err)
	assert.Equal(t, entities.TypeSelf, tx.Type)
	assert.True(t, tx.IsTokenTransferred)
}

func TestClassify_TokenTransfer(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, testutil.ContractAddress, []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(wallet), testutil.AsToken("USDC", testutil.USDCAddress), testutil.WithValue("10")),
		testutil.CreateTestTransfer(testutil.WithValue("1")),
	})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeToken, tx.Type)
	assertDecimal(t, "10", tx.NetValueChanges["USDC"])
	assertDecimal(t, "-1", tx.NetValueChanges["ETH"])
	assert.Equal(t, entities.TransferReceived, tx.TransferDirection)
}

func TestClassify_UnnamedTokenUsesFallbackKey(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(wallet), testutil.AsToken("", testutil.USDCAddress), testutil.WithValue("4")),
	})
	require.NoError(t, err)
	assertDecimal(t, "4", tx.NetValueChanges[AssetUnknownToken])
}

func TestClassify_NetValueZeroRemoval(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(testutil.BobAddress), testutil.WithValue("3")),
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(wallet), testutil.WithValue("3.0")),
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(wallet), testutil.AsToken("USDC", testutil.USDCAddress), testutil.WithValue("7")),
	})
	require.NoError(t, err)

	_, hasETH := tx.NetValueChanges["ETH"]
	assert.False(t, hasETH)
	assertDecimal(t, "7", tx.NetValueChanges["USDC"])
}

func TestClassify_BalancedTransfersCollapseToNil(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(testutil.BobAddress), testutil.WithValue("3")),
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(wallet), testutil.WithValue("3")),
	})
	require.NoError(t, err)

	assert.Nil(t, tx.NetValueChanges)
	assert.Empty(t, tx.TransferDirection)
	assert.Equal(t, entities.TypeUnknown, tx.Type)
}

func TestClassify_OppositeAssetsSumToZero(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(testutil.BobAddress), testutil.WithValue("2")),
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(wallet), testutil.WithValue("2"), testutil.WithAsset("WETH")),
	})
	require.NoError(t, err)

	assert.Len(t, tx.NetValueChanges, 2)
	assert.Empty(t, tx.TransferDirection)
	assert.Equal(t, entities.TypeNative, tx.Type)
}

func TestClassify_UnknownForUnvaluedNFT(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(
			testutil.WithFrom(testutil.BobAddress),
			testutil.WithTo(wallet),
			testutil.WithNullValue(),
			testutil.WithCategory(entities.CategoryERC721),
		),
	})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeUnknown, tx.Type)
	assert.Nil(t, tx.NetValueChanges)
	assert.False(t, tx.IsTokenTransferred)
}

func TestClassify_UnrelatedTransferIgnoredInNetValue(t *testing.T) {
	tx, err := newTestClassifier().Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(testutil.CharlieAddr), testutil.WithValue("9")),
		testutil.CreateTestTransfer(testutil.WithFrom(""), testutil.WithTo(wallet), testutil.WithValue("9")),
	})
	require.NoError(t, err)
	assert.Nil(t, tx.NetValueChanges)
	assert.Equal(t, entities.TypeUnknown, tx.Type)
}

func TestClassifyWithInput_ContractDecode(t *testing.T) {
	call := &entities.DecodedCall{
		Source:            "contract",
		FunctionName:      "joinCommunity",
		FunctionSignature: "joinCommunity()",
	}
	tokenDecoder := decoderReturning(&entities.DecodedCall{Source: "erc20"})
	c := NewClassifier(decoderReturning(call), tokenDecoder, SelfTransferLast, zap.NewNop())

	tx, err := c.ClassifyWithInput(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.AsToken("USDC", testutil.USDCAddress)),
	}, []byte{0x01, 0x02, 0x03, 0x04})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeContract, tx.Type)
	assert.Equal(t, call, tx.Decoded)
	// the token ABI is not consulted once the contract ABI matched
	assert.Empty(t, tokenDecoder.Calls)
}

func TestClassifyWithInput_FallsBackToTokenDecode(t *testing.T) {
	call := &entities.DecodedCall{
		Source:            "erc20",
		FunctionName:      "approve",
		FunctionSignature: "approve(address,uint256)",
		Arguments: []entities.Argument{
			{Name: "spender", Type: "address", Value: testutil.ContractAddress},
			{Name: "amount", Type: "uint256", Value: "100"},
		},
	}
	contractDecoder := failingDecoder()
	c := NewClassifier(contractDecoder, decoderReturning(call), SelfTransferLast, zap.NewNop())

	tx, err := c.ClassifyWithInput(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithValue("0")),
	}, []byte{0x09, 0x5e, 0xa7, 0xb3})
	require.NoError(t, err)

	assert.Equal(t, entities.TypeToken, tx.Type)
	assert.Equal(t, call, tx.Decoded)
	assert.False(t, tx.IsTokenTransferred)
	assert.Len(t, contractDecoder.Calls, 1)
}

func TestClassifyWithInput_DecodeFailuresAreSwallowed(t *testing.T) {
	c := NewClassifier(failingDecoder(), failingDecoder(), SelfTransferLast, zap.NewNop())

	tx, err := c.ClassifyWithInput(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(wallet)),
	}, []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	assert.Nil(t, tx.Decoded)
	assert.Equal(t, entities.TypeNative, tx.Type)
}

func TestClassifyWithInput_NoInputSkipsDecoders(t *testing.T) {
	contractDecoder := failingDecoder()
	c := NewClassifier(contractDecoder, nil, SelfTransferLast, zap.NewNop())

	_, err := c.ClassifyWithInput(wallet, "", []entities.Transfer{testutil.CreateTestTransfer()}, nil)
	require.NoError(t, err)
	assert.Empty(t, contractDecoder.Calls)
}

func TestClassify_IsIdempotent(t *testing.T) {
	call := &entities.DecodedCall{Source: "erc20", FunctionName: "transfer"}
	c := NewClassifier(failingDecoder(), decoderReturning(call), SelfTransferLast, zap.NewNop())

	transfers := []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithFrom(testutil.BobAddress), testutil.WithTo(wallet), testutil.AsToken("USDC", testutil.USDCAddress), testutil.WithValue("10")),
		testutil.CreateTestTransfer(testutil.WithValue("0.25")),
		testutil.CreateTestTransfer(testutil.WithFrom(wallet), testutil.WithTo(wallet), testutil.WithValue("5")),
	}
	input := []byte{0xa9, 0x05, 0x9c, 0xbb}

	first, err := c.ClassifyWithInput(wallet, testutil.ContractAddress, transfers, input)
	require.NoError(t, err)
	second, err := c.ClassifyWithInput(wallet, testutil.ContractAddress, transfers, input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestClassify_OwnsItsTransfers(t *testing.T) {
	transfers := []entities.Transfer{testutil.CreateTestTransfer()}

	tx, err := newTestClassifier().Classify(wallet, "", transfers)
	require.NoError(t, err)

	transfers[0].Asset = "CHANGED"
	assert.Equal(t, "ETH", tx.Transfers[0].Asset)
}

func TestClassify_RequiresTransfers(t *testing.T) {
	_, err := newTestClassifier().Classify(wallet, "", nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryInvalidInput))
}

func TestClassify_WarnsOnMismatchedHashes(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := NewClassifier(nil, nil, SelfTransferLast, zap.New(core))

	tx, err := c.Classify(wallet, "", []entities.Transfer{
		testutil.CreateTestTransfer(testutil.WithHash(testutil.TestHash(1))),
		testutil.CreateTestTransfer(testutil.WithHash(testutil.TestHash(2))),
	})
	require.NoError(t, err)

	assert.Equal(t, testutil.TestHash(1), tx.Hash)
	assert.Equal(t, 1, logs.FilterMessage("Classifying transfers with mismatched hashes").Len())
}

func TestParseSelfTransferPolicy(t *testing.T) {
	for in, want := range map[string]SelfTransferPolicy{
		"":        SelfTransferLast,
		"last":    SelfTransferLast,
		" First ": SelfTransferFirst,
		"HIGHEST": SelfTransferHighest,
	} {
		got, err := ParseSelfTransferPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSelfTransferPolicy("random")
	assert.Error(t, err)
}
