package curve

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-exchange-adapters-go/engine"
)

// PoolShape is a supported (coin count, coin index) pair. Curve pools take
// fixed-size uint256[N] amount arrays, so every supported pair is its own variant.
type PoolShape uint8

const (
	ShapeUnsupported PoolShape = iota
	Shape2Coin0
	Shape2Coin1
	Shape3Coin0
	Shape3Coin1
	Shape3Coin2
	Shape4Coin0
	Shape4Coin1
	Shape4Coin2
	Shape4Coin3
)

// ShapeOf maps a pool's coin count and a coin index onto its variant.
func ShapeOf(coinCount, index int) (PoolShape, error) {
	switch coinCount {
	case 2:
		switch index {
		case 0:
			return Shape2Coin0, nil
		case 1:
			return Shape2Coin1, nil
		}
	case 3:
		switch index {
		case 0:
			return Shape3Coin0, nil
		case 1:
			return Shape3Coin1, nil
		case 2:
			return Shape3Coin2, nil
		}
	case 4:
		switch index {
		case 0:
			return Shape4Coin0, nil
		case 1:
			return Shape4Coin1, nil
		case 2:
			return Shape4Coin2, nil
		case 3:
			return Shape4Coin3, nil
		}
	}
	return ShapeUnsupported, fmt.Errorf("%w: %d coins, index %d", engine.ErrUnsupportedPoolShape, coinCount, index)
}

// CoinCount is N for the variant, 0 when unsupported.
func (s PoolShape) CoinCount() int {
	switch s {
	case Shape2Coin0, Shape2Coin1:
		return 2
	case Shape3Coin0, Shape3Coin1, Shape3Coin2:
		return 3
	case Shape4Coin0, Shape4Coin1, Shape4Coin2, Shape4Coin3:
		return 4
	}
	return 0
}

// Index is the coin index of the variant, -1 when unsupported.
func (s PoolShape) Index() int {
	switch s {
	case Shape2Coin0, Shape3Coin0, Shape4Coin0:
		return 0
	case Shape2Coin1, Shape3Coin1, Shape4Coin1:
		return 1
	case Shape3Coin2, Shape4Coin2:
		return 2
	case Shape4Coin3:
		return 3
	}
	return -1
}

func (s PoolShape) String() string {
	if s == ShapeUnsupported {
		return "unsupported"
	}
	return fmt.Sprintf("%dcoin[%d]", s.CoinCount(), s.Index())
}

// Amounts returns the N-element vector with amount at the variant's index
// and zero elsewhere.
func (s PoolShape) Amounts(amount *big.Int) ([]*big.Int, error) {
	n := s.CoinCount()
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnsupportedPoolShape, s)
	}
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = new(big.Int)
	}
	out[s.Index()].Set(amount)
	return out, nil
}

// FixedAmounts converts a 2, 3 or 4 element vector into the array type the
// ABI packer needs for uint256[N].
func FixedAmounts(amounts []*big.Int) (any, error) {
	switch len(amounts) {
	case 2:
		return [2]*big.Int{amounts[0], amounts[1]}, nil
	case 3:
		return [3]*big.Int{amounts[0], amounts[1], amounts[2]}, nil
	case 4:
		return [4]*big.Int{amounts[0], amounts[1], amounts[2], amounts[3]}, nil
	}
	return nil, fmt.Errorf("%w: %d coins", engine.ErrUnsupportedPoolShape, len(amounts))
}
