package ethereum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
)

// Standard ERC20 ABI for decoding token calls
const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const (
	SourceContract = "contract"
	SourceERC20    = "erc20"
)

// ABIDecoder decodes transaction input against one contract ABI
type ABIDecoder struct {
	source string
	abi    abi.ABI
}

// NewABIDecoder parses abiJSON. source labels decoded calls.
func NewABIDecoder(source, abiJSON string) (*ABIDecoder, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s ABI: %w", source, err)
	}
	return &ABIDecoder{source: source, abi: parsed}, nil
}

// NewERC20Decoder returns a decoder for the standard ERC-20 functions
func NewERC20Decoder() (*ABIDecoder, error) {
	return NewABIDecoder(SourceERC20, erc20ABI)
}

// LoadABIFile reads an ABI from path. Both a bare ABI array and a compiler
// artifact with an "abi" field are accepted.
func LoadABIFile(source, path string) (*ABIDecoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ABI file: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, fmt.Errorf("failed to parse ABI artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return nil, fmt.Errorf("ABI artifact %s has no abi field", path)
		}
		data = artifact.ABI
	}

	return NewABIDecoder(source, string(data))
}

// Decode matches the 4-byte selector of input and unpacks its arguments.
// Parameters without a name or type are left out of the result.
func (d *ABIDecoder) Decode(input []byte) (*entities.DecodedCall, error) {
	if len(input) < 4 {
		return nil, apperrors.DecodeError(nil, "Input is shorter than a function selector")
	}

	method, err := d.abi.MethodById(input[:4])
	if err != nil {
		return nil, apperrors.DecodeError(err, fmt.Sprintf("No %s function matches selector", d.source))
	}

	values, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, apperrors.DecodeError(err, fmt.Sprintf("Failed to unpack %s arguments", method.Name))
	}

	args := make([]entities.Argument, 0, len(method.Inputs))
	for i, param := range method.Inputs {
		if i >= len(values) {
			break
		}
		typ := param.Type.String()
		if param.Name == "" || typ == "" {
			continue
		}
		args = append(args, entities.Argument{
			Name:  param.Name,
			Type:  typ,
			Value: formatValue(values[i]),
		})
	}

	return &entities.DecodedCall{
		Source:            d.source,
		FunctionName:      method.Name,
		FunctionSignature: method.Sig,
		Arguments:         args,
	}, nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case common.Address:
		return val.Hex()
	case *big.Int:
		if val == nil {
			return "0"
		}
		return val.String()
	case []byte:
		return hexutil.Encode(val)
	case [32]byte:
		return hexutil.Encode(val[:])
	case string:
		return val
	case []common.Address:
		parts := make([]string, len(val))
		for i, a := range val {
			parts[i] = a.Hex()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []*big.Int:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = n.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(val)
	}
}
