package fixed

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// FracBits is the number of fractional bits of the on-chain WrappedI80F48 format.
const FracBits = 48

var (
	ErrOverflow       = errors.New("fixed: overflow")
	ErrDivisionByZero = errors.New("fixed: division by zero")
	ErrInvalidBytes   = errors.New("fixed: invalid byte length")
)

// I80F48 is a 128-bit two's-complement fixed-point number with 48 fractional
// bits. The value is kept sign-extended to 256 bits so products and shifted
// dividends are computed exactly before being range-checked back to 128 bits.
//
// The zero value is 0. Values are immutable: every operation returns a new one.
type I80F48 struct {
	v uint256.Int
}

var (
	maxRaw = fromLimbs(math.MaxUint64, math.MaxInt64)
	minRaw = fromLimbs(0, 1<<63)

	MaxValue = I80F48{v: maxRaw}
	MinValue = I80F48{v: minRaw}
	Zero     = I80F48{}
	One      = FromInt(1)

	twoPow48    = new(big.Int).Lsh(big.NewInt(1), FracBits)
	fivePow48   = new(big.Int).Exp(big.NewInt(5), big.NewInt(FracBits), nil)
	twoPow48Dec = decimal.NewFromBigInt(twoPow48, 0)
)

func fromLimbs(lo, hi uint64) uint256.Int {
	var z uint256.Int
	z[0], z[1] = lo, hi
	if int64(hi) < 0 {
		z[2], z[3] = math.MaxUint64, math.MaxUint64
	}
	return z
}

// narrow range-checks a 256-bit intermediate. On overflow the saturated bound
// is returned together with ErrOverflow.
func narrow(z uint256.Int) (I80F48, error) {
	if z.Slt(&minRaw) {
		return MinValue, ErrOverflow
	}
	if z.Sgt(&maxRaw) {
		return MaxValue, ErrOverflow
	}
	return I80F48{v: z}, nil
}

func FromInt(n int64) I80F48 {
	var z uint256.Int
	if n < 0 {
		z.SetUint64(uint64(-n))
		z.Neg(&z)
	} else {
		z.SetUint64(uint64(n))
	}
	z.Lsh(&z, FracBits)
	return I80F48{v: z}
}

func FromUint(n uint64) I80F48 {
	var z uint256.Int
	z.SetUint64(n)
	z.Lsh(&z, FracBits)
	return I80F48{v: z}
}

// FromBits builds a value from its raw signed representation (value * 2^48).
func FromBits(raw *big.Int) (I80F48, error) {
	abs := new(big.Int).Abs(raw)
	if abs.BitLen() > 128 {
		if raw.Sign() < 0 {
			return MinValue, ErrOverflow
		}
		return MaxValue, ErrOverflow
	}
	var z uint256.Int
	z.SetFromBig(abs)
	if raw.Sign() < 0 {
		z.Neg(&z)
	}
	return narrow(z)
}

// FromLEBytes decodes the 16-byte little-endian wire form used by on-chain accounts.
func FromLEBytes(b []byte) (I80F48, error) {
	if len(b) != 16 {
		return Zero, errors.Wrapf(ErrInvalidBytes, "got %d bytes", len(b))
	}
	var lo, hi uint64
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(b[i])
		hi = hi<<8 | uint64(b[i+8])
	}
	return I80F48{v: fromLimbs(lo, hi)}, nil
}

// FromScaled converts mantissa * 10^expo, truncating toward zero.
func FromScaled(mantissa *big.Int, expo int32) (I80F48, error) {
	n := new(big.Int).Lsh(mantissa, FracBits)
	if expo >= 0 {
		n.Mul(n, pow10Big(expo))
	} else {
		n.Quo(n, pow10Big(-expo))
	}
	return FromBits(n)
}

func MustFromScaled(mantissa int64, expo int32) I80F48 {
	x, err := FromScaled(big.NewInt(mantissa), expo)
	if err != nil {
		panic(err)
	}
	return x
}

// Pow10 returns 10^n.
func Pow10(n int32) I80F48 {
	x, _ := FromScaled(big.NewInt(1), n)
	return x
}

func pow10Big(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// FromDecimal converts exactly where possible and truncates toward zero below 2^-48.
func FromDecimal(d decimal.Decimal) (I80F48, error) {
	return FromBits(d.Mul(twoPow48Dec).BigInt())
}

func FromString(s string) (I80F48, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, errors.Wrapf(err, "parse fixed %q", s)
	}
	return FromDecimal(d)
}

func MustFromString(s string) I80F48 {
	x, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return x
}

// Bits returns the raw signed representation (value * 2^48).
func (x I80F48) Bits() *big.Int {
	if x.v.Sign() < 0 {
		var n uint256.Int
		n.Neg(&x.v)
		b := n.ToBig()
		return b.Neg(b)
	}
	return x.v.ToBig()
}

func (x I80F48) LEBytes() [16]byte {
	var out [16]byte
	lo, hi := x.v[0], x.v[1]
	for i := 0; i < 8; i++ {
		out[i] = byte(lo >> (8 * i))
		out[i+8] = byte(hi >> (8 * i))
	}
	return out
}

// Decimal is exact: x = bits / 2^48 = bits * 5^48 / 10^48.
func (x I80F48) Decimal() decimal.Decimal {
	n := x.Bits()
	n.Mul(n, fivePow48)
	return decimal.NewFromBigInt(n, -FracBits)
}

func (x I80F48) String() string {
	return x.Decimal().String()
}

// Float64 is for display only.
func (x I80F48) Float64() float64 {
	return x.Decimal().InexactFloat64()
}

func (x I80F48) CheckedAdd(y I80F48) (I80F48, error) {
	var z uint256.Int
	z.Add(&x.v, &y.v)
	return narrow(z)
}

func (x I80F48) CheckedSub(y I80F48) (I80F48, error) {
	var z uint256.Int
	z.Sub(&x.v, &y.v)
	return narrow(z)
}

// CheckedMul rounds toward negative infinity.
func (x I80F48) CheckedMul(y I80F48) (I80F48, error) {
	var z uint256.Int
	z.Mul(&x.v, &y.v)
	z.SRsh(&z, FracBits)
	return narrow(z)
}

// CheckedDiv truncates toward zero.
func (x I80F48) CheckedDiv(y I80F48) (I80F48, error) {
	if y.IsZero() {
		return Zero, ErrDivisionByZero
	}
	var z uint256.Int
	z.Lsh(&x.v, FracBits)
	z.SDiv(&z, &y.v)
	return narrow(z)
}

func (x I80F48) Add(y I80F48) I80F48 {
	z, _ := x.CheckedAdd(y)
	return z
}

func (x I80F48) Sub(y I80F48) I80F48 {
	z, _ := x.CheckedSub(y)
	return z
}

func (x I80F48) Mul(y I80F48) I80F48 {
	z, _ := x.CheckedMul(y)
	return z
}

// Div saturates on overflow and only fails on a zero divisor.
func (x I80F48) Div(y I80F48) (I80F48, error) {
	z, err := x.CheckedDiv(y)
	if errors.Is(err, ErrDivisionByZero) {
		return z, err
	}
	return z, nil
}

func (x I80F48) Neg() I80F48 {
	var z uint256.Int
	z.Neg(&x.v)
	n, _ := narrow(z)
	return n
}

func (x I80F48) Abs() I80F48 {
	if x.IsNegative() {
		return x.Neg()
	}
	return x
}

func (x I80F48) Cmp(y I80F48) int {
	switch {
	case x.v.Slt(&y.v):
		return -1
	case x.v.Sgt(&y.v):
		return 1
	default:
		return 0
	}
}

func (x I80F48) Sign() int {
	return x.v.Sign()
}

func (x I80F48) IsZero() bool { return x.v.IsZero() }
func (x I80F48) IsNegative() bool { return x.Sign() < 0 }
func (x I80F48) IsPositive() bool { return x.Sign() > 0 }
func (x I80F48) Equal(y I80F48) bool { return x.v.Eq(&y.v) }
func (x I80F48) LessThan(y I80F48) bool { return x.Cmp(y) < 0 }
func (x I80F48) LessThanOrEqual(y I80F48) bool { return x.Cmp(y) <= 0 }
func (x I80F48) GreaterThan(y I80F48) bool { return x.Cmp(y) > 0 }
func (x I80F48) GreaterThanOrEqual(y I80F48) bool { return x.Cmp(y) >= 0 }

func Min(first I80F48, rest ...I80F48) I80F48 {
	m := first
	for _, r := range rest {
		if r.LessThan(m) {
			m = r
		}
	}
	return m
}

func Max(first I80F48, rest ...I80F48) I80F48 {
	m := first
	for _, r := range rest {
		if r.GreaterThan(m) {
			m = r
		}
	}
	return m
}

func (x I80F48) MarshalJSON() ([]byte, error) {
	return []byte(`"` + x.String() + `"`), nil
}

func (x *I80F48) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return errors.Wrap(err, "unmarshal fixed")
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*x = v
	return nil
}
