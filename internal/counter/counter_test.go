package counter

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/vaultlink/vaultlink/internal/errs"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    uint64
		wantBig bool
	}{
		{"empty", "", 0, false},
		{"whitespace only", "   \t", 0, false},
		{"single zero block", "00000000", 0, false},
		{"padded small", "00000000 00000000 00000000 00000000 00000000 0001E240", 123456, false},
		{"lowercase", "ff", 255, false},
		{"newline separated", "0000\n00FF", 255, false},
		{"max uint64", "FFFFFFFF FFFFFFFF", math.MaxUint64, false},
		{"beyond uint64", "00000001 00000000 00000000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Normalize(tt.input)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.input, err)
			}
			if v.IsBig() != tt.wantBig {
				t.Fatalf("Expected IsBig=%v, got %v", tt.wantBig, v.IsBig())
			}
			if !tt.wantBig {
				n, ok := v.Uint64()
				if !ok || n != tt.want {
					t.Errorf("Expected %d, got %d (ok=%v)", tt.want, n, ok)
				}
			}
		})
	}
}

func TestNormalizeMalformed(t *testing.T) {
	for _, input := range []string{"0x10", "12G4", "-1", "1.5"} {
		_, err := Normalize(input)
		if err == nil {
			t.Errorf("Expected error for %q", input)
			continue
		}
		var fe *errs.FormatError
		if !errors.As(err, &fe) {
			t.Errorf("Expected FormatError for %q, got %T", input, err)
			continue
		}
		if fe.Input != input {
			t.Errorf("Expected input %q in error, got %q", input, fe.Input)
		}
	}
}

func TestNormalizeBigRoundTrip(t *testing.T) {
	inputs := []string{
		"00000001 00000000 00000000",
		"FFFFFFFF FFFFFFFF FFFFFFFF FFFFFFFF FFFFFFFF FFFFFFFF",
		"0000ABCD EF012345 6789ABCD EF012345",
	}
	for _, input := range inputs {
		v, err := Normalize(input)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", input, err)
		}
		want := strings.TrimLeft(strings.ReplaceAll(input, " ", ""), "0")
		if v.Hex() != want {
			t.Errorf("Round trip mismatch: expected %s, got %s", want, v.Hex())
		}
		back, err := Normalize(Encode(v))
		if err != nil {
			t.Fatalf("Normalize(Encode) error: %v", err)
		}
		if back.Cmp(v) != 0 {
			t.Errorf("Encode round trip changed value: %s != %s", back, v)
		}
	}
}

func TestEncode(t *testing.T) {
	got := Encode(FromUint64(123456))
	want := "00000000 00000000 00000000 00000000 00000000 0001E240"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	if got := Encode(Zero); got != strings.Repeat("00000000 ", 5)+"00000000" {
		t.Errorf("Unexpected zero encoding %q", got)
	}

	wide := FromBig(new(big.Int).Lsh(big.NewInt(1), 200))
	blocks := strings.Split(Encode(wide), " ")
	if len(blocks) != 7 {
		t.Errorf("Expected 7 blocks for a 201-bit value, got %d", len(blocks))
	}
}

func TestCmpMixedRepresentations(t *testing.T) {
	small := FromUint64(math.MaxUint64)
	large, _ := Normalize("1 00000000 00000000")

	if small.Cmp(large) != -1 {
		t.Error("Expected native value to be less than big value")
	}
	if large.Cmp(small) != 1 {
		t.Error("Expected big value to be greater than native value")
	}
	if large.Cmp(FromBig(large.Big())) != 0 {
		t.Error("Expected equal big values to compare equal")
	}
	if FromUint64(3).Cmp(FromUint64(3)) != 0 {
		t.Error("Expected equal native values to compare equal")
	}
}

func TestAddPromotesOnOverflow(t *testing.T) {
	sum := FromUint64(math.MaxUint64).Add(FromUint64(1))
	if !sum.IsBig() {
		t.Fatal("Expected overflow to promote to big")
	}
	if sum.String() != "18446744073709551616" {
		t.Errorf("Unexpected sum %s", sum)
	}

	if got := FromUint64(2).Add(FromUint64(3)); got.String() != "5" {
		t.Errorf("Expected 5, got %s", got)
	}
}

func TestFromBigNormalizesSmallValues(t *testing.T) {
	v := FromBig(big.NewInt(42))
	if v.IsBig() {
		t.Error("Expected small big.Int to become native")
	}
	if FromBig(big.NewInt(-5)).IsZero() != true {
		t.Error("Expected negative input to become zero")
	}
}

func TestInt64Saturates(t *testing.T) {
	if FromUint64(math.MaxUint64).Int64() != math.MaxInt64 {
		t.Error("Expected saturation at MaxInt64")
	}
	if FromUint64(7).Int64() != 7 {
		t.Error("Expected 7")
	}
}

func TestMarshalJSON(t *testing.T) {
	v, _ := Normalize("1 00000000 00000000")
	b, err := v.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "18446744073709551616" {
		t.Errorf("Unexpected JSON %s", b)
	}
}
