package mir

import (
	"github.com/e2m-lab/e2m/core/evm"
	"github.com/holiman/uint256"
)

func boolInt(b bool) *uint256.Int {
	if b {
		return uint256.NewInt(1)
	}
	return new(uint256.Int)
}

// Fold evaluates op over constant operands given in stack order, args[0]
// being the top. It reports false for opcodes it does not evaluate or when
// the operand count does not match.
func Fold(op evm.ByteCode, args ...*uint256.Int) (*uint256.Int, bool) {
	if len(args) != op.Info().Pops {
		return nil, false
	}
	z := new(uint256.Int)
	switch op {
	case evm.ISZERO:
		return boolInt(args[0].IsZero()), true
	case evm.NOT:
		return z.Not(args[0]), true
	case evm.ADDMOD:
		return z.AddMod(args[0], args[1], args[2]), true
	case evm.MULMOD:
		return z.MulMod(args[0], args[1], args[2]), true
	}
	if len(args) != 2 {
		return nil, false
	}
	a, b := args[0], args[1]
	switch op {
	case evm.ADD:
		return z.Add(a, b), true
	case evm.MUL:
		return z.Mul(a, b), true
	case evm.SUB:
		return z.Sub(a, b), true
	case evm.DIV:
		return z.Div(a, b), true
	case evm.SDIV:
		return z.SDiv(a, b), true
	case evm.MOD:
		return z.Mod(a, b), true
	case evm.SMOD:
		return z.SMod(a, b), true
	case evm.EXP:
		return z.Exp(a, b), true
	case evm.SIGNEXTEND:
		return z.ExtendSign(b, a), true
	case evm.LT:
		return boolInt(a.Lt(b)), true
	case evm.GT:
		return boolInt(a.Gt(b)), true
	case evm.SLT:
		return boolInt(a.Slt(b)), true
	case evm.SGT:
		return boolInt(a.Sgt(b)), true
	case evm.EQ:
		return boolInt(a.Eq(b)), true
	case evm.AND:
		return z.And(a, b), true
	case evm.OR:
		return z.Or(a, b), true
	case evm.XOR:
		return z.Xor(a, b), true
	case evm.BYTE:
		return z.Set(b).Byte(a), true
	case evm.SHL:
		if !a.LtUint64(256) {
			return z, true
		}
		return z.Lsh(b, uint(a.Uint64())), true
	case evm.SHR:
		if !a.LtUint64(256) {
			return z, true
		}
		return z.Rsh(b, uint(a.Uint64())), true
	case evm.SAR:
		if !a.LtUint64(256) {
			if b.Sign() < 0 {
				return z.SetAllOne(), true
			}
			return z, true
		}
		return z.SRsh(b, uint(a.Uint64())), true
	}
	return nil, false
}
