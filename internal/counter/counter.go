// Package counter decodes the fixed-width hexadecimal block counters used by
// the storage service for sizes, download counts and timestamps.
//
// A counter such as
//
//	"00000000 00000000 00000000 00000000 00000000 0001E240"
//
// is an unsigned big-endian integer. Values that fit in a uint64 are held
// natively; larger values fall back to math/big. Both forms compare, format
// and add uniformly through Value.
package counter

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/errs"
)

// nativeDigits is the longest significant hex run that always fits a uint64.
const nativeDigits = 16

// Value is a non-negative integer decoded from a wire counter.
// The zero Value is 0.
type Value struct {
	n   uint64
	big *big.Int // set only when the value exceeds math.MaxUint64
}

// Zero is the counter value used for absent or unreadable counters.
var Zero = Value{}

// FromUint64 wraps a native integer.
func FromUint64(n uint64) Value {
	return Value{n: n}
}

// FromBig wraps an arbitrary-precision integer. Negative inputs are treated as zero.
func FromBig(b *big.Int) Value {
	if b == nil || b.Sign() <= 0 {
		return Zero
	}
	if b.IsUint64() {
		return Value{n: b.Uint64()}
	}
	return Value{big: new(big.Int).Set(b)}
}

// Normalize parses a hex block string. Whitespace anywhere in the input is
// ignored. An empty or all-whitespace input yields Zero. Any other non-hex
// character yields an *errs.FormatError.
func Normalize(raw string) (Value, error) {
	var sb strings.Builder
	sb.Grow(len(raw))
	for i, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		if !isHexDigit(r) {
			return Zero, &errs.FormatError{Input: raw, Pos: i, Char: r}
		}
		sb.WriteRune(r)
	}

	digits := strings.TrimLeft(sb.String(), "0")
	if digits == "" {
		return Zero, nil
	}

	if len(digits) <= nativeDigits {
		n, err := strconv.ParseUint(digits, 16, 64)
		if err != nil {
			return Zero, &errs.FormatError{Input: raw}
		}
		return Value{n: n}, nil
	}

	b, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return Zero, &errs.FormatError{Input: raw}
	}
	return Value{big: b}, nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// IsBig reports whether the value lies beyond the native uint64 range.
func (v Value) IsBig() bool {
	return v.big != nil
}

// IsZero reports whether the value is 0.
func (v Value) IsZero() bool {
	return v.big == nil && v.n == 0
}

// Uint64 returns the native value. ok is false when the value does not fit.
func (v Value) Uint64() (n uint64, ok bool) {
	if v.big != nil {
		return 0, false
	}
	return v.n, true
}

// Int64 returns the value as int64, saturating at math.MaxInt64.
func (v Value) Int64() int64 {
	if v.big != nil || v.n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v.n)
}

// Big returns a copy of the value as a *big.Int.
func (v Value) Big() *big.Int {
	if v.big != nil {
		return new(big.Int).Set(v.big)
	}
	return new(big.Int).SetUint64(v.n)
}

// Float64 returns a best-effort approximation. Precision is lost above 2^53.
func (v Value) Float64() float64 {
	if v.big != nil {
		f, _ := new(big.Float).SetInt(v.big).Float64()
		return f
	}
	return float64(v.n)
}

// Cmp compares v and o, returning -1, 0 or +1.
func (v Value) Cmp(o Value) int {
	switch {
	case v.big == nil && o.big == nil:
		switch {
		case v.n < o.n:
			return -1
		case v.n > o.n:
			return 1
		}
		return 0
	case v.big != nil && o.big != nil:
		return v.big.Cmp(o.big)
	case v.big != nil:
		return 1
	default:
		return -1
	}
}

// Add returns v+o, promoting to arbitrary precision on overflow.
func (v Value) Add(o Value) Value {
	if v.big == nil && o.big == nil {
		sum := v.n + o.n
		if sum >= v.n {
			return Value{n: sum}
		}
	}
	return Value{big: new(big.Int).Add(v.Big(), o.Big())}
}

// String formats the value in decimal.
func (v Value) String() string {
	if v.big != nil {
		return v.big.String()
	}
	return strconv.FormatUint(v.n, 10)
}

// Hex returns the canonical unpadded uppercase hex form ("0" for zero).
func (v Value) Hex() string {
	if v.big != nil {
		return strings.ToUpper(v.big.Text(16))
	}
	return strings.ToUpper(strconv.FormatUint(v.n, 16))
}

// MarshalJSON emits the value as a JSON number of arbitrary length.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// MarshalText emits the decimal form, used by YAML output.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Encode renders v in the wire format: uppercase hex, zero-filled to 48
// digits, split into space-separated 8-digit blocks. Values wider than 48
// digits are zero-filled to the next block boundary.
func Encode(v Value) string {
	hex := v.Hex()
	width := constants.CounterWidth
	if len(hex) > width {
		width = (len(hex) + constants.CounterBlockSize - 1) / constants.CounterBlockSize * constants.CounterBlockSize
	}
	padded := strings.Repeat("0", width-len(hex)) + hex

	blocks := make([]string, 0, width/constants.CounterBlockSize)
	for i := 0; i < width; i += constants.CounterBlockSize {
		blocks = append(blocks, padded[i:i+constants.CounterBlockSize])
	}
	return strings.Join(blocks, " ")
}
