package vault

import (
	"github.com/holiman/uint256"

	"github.com/phessophissy/POSVault/internal/fault"
)

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10_000

// Accrue returns amount * rateBps * cycles / 10000 where cycles counts only
// completed cycles of cycleLength ticks in elapsed. The product is formed in
// 256 bits (at most 64+32+64 bits wide, so it cannot wrap); a quotient that
// does not fit in 64 bits is reported as ArithmeticOverflow.
func Accrue(amount uint64, rateBps uint32, elapsed, cycleLength uint64) (uint64, error) {
	if cycleLength == 0 {
		return 0, fault.ErrArithmeticOverflow
	}
	cycles := elapsed / cycleLength
	if cycles == 0 || amount == 0 || rateBps == 0 {
		return 0, nil
	}
	r := new(uint256.Int).SetUint64(amount)
	r.Mul(r, uint256.NewInt(uint64(rateBps)))
	r.Mul(r, uint256.NewInt(cycles))
	r.Div(r, uint256.NewInt(BpsDenominator))
	if !r.IsUint64() {
		return 0, fault.ErrArithmeticOverflow
	}
	return r.Uint64(), nil
}
