// Package relay implements the cross-domain order relay core: the wire
// codec, the mailbox transport contract, the origin-side spoke and the
// destination-side hub.
package relay

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/polycross/relaybot/internal/domain"
)

// encodedLen is the byte length of an encoded order message: an ABI static
// tuple (uint256 marketId, uint256 price, uint256 amount, bool isBuy).
const encodedLen = 4 * 32

var orderArgs abi.Arguments

func init() {
	uint256T, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(fmt.Sprintf("relay: build uint256 type: %v", err))
	}
	boolT, err := abi.NewType("bool", "", nil)
	if err != nil {
		panic(fmt.Sprintf("relay: build bool type: %v", err))
	}
	orderArgs = abi.Arguments{
		{Name: "marketId", Type: uint256T},
		{Name: "price", Type: uint256T},
		{Name: "amount", Type: uint256T},
		{Name: "isBuy", Type: boolT},
	}
}

// EncodeOrder serializes the relayed fields of an order into the fixed ABI
// tuple layout. The user address is not part of the payload; the hub derives
// it from the relay context. The order must already be validated.
func EncodeOrder(o domain.Order) ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	packed, err := orderArgs.Pack(
		big.NewInt(o.MarketID),
		big.NewInt(o.Price),
		big.NewInt(o.Amount),
		o.IsBuy,
	)
	if err != nil {
		return nil, fmt.Errorf("relay: encode order: %w", err)
	}
	return packed, nil
}

// DecodeOrder parses an encoded order payload. Payloads of the wrong length,
// with non-canonical bool words, or with values outside the int64 range are
// rejected with domain.ErrDecode and produce no partial result.
func DecodeOrder(payload []byte) (domain.Order, error) {
	if len(payload) != encodedLen {
		return domain.Order{}, fmt.Errorf("%w: payload length %d, want %d",
			domain.ErrDecode, len(payload), encodedLen)
	}

	vals, err := orderArgs.Unpack(payload)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if len(vals) != 4 {
		return domain.Order{}, fmt.Errorf("%w: unpacked %d values, want 4",
			domain.ErrDecode, len(vals))
	}

	marketID, ok := vals[0].(*big.Int)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: marketId is %T", domain.ErrDecode, vals[0])
	}
	price, ok := vals[1].(*big.Int)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: price is %T", domain.ErrDecode, vals[1])
	}
	amount, ok := vals[2].(*big.Int)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: amount is %T", domain.ErrDecode, vals[2])
	}
	isBuy, ok := vals[3].(bool)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: isBuy is %T", domain.ErrDecode, vals[3])
	}

	for name, v := range map[string]*big.Int{
		"marketId": marketID, "price": price, "amount": amount,
	} {
		if !v.IsInt64() {
			return domain.Order{}, fmt.Errorf("%w: %s overflows int64", domain.ErrDecode, name)
		}
	}

	o := domain.Order{
		MarketID: marketID.Int64(),
		Price:    price.Int64(),
		Amount:   amount.Int64(),
		IsBuy:    isBuy,
	}
	if err := o.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return o, nil
}
