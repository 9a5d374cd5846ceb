package units

import (
	"errors"
	"math/big"
	"testing"
)

func TestToUnits(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals int
		want     string
		wantErr  error
	}{
		{name: "whole amount", in: "6", decimals: 18, want: "6000000000000000000"},
		{name: "fractional amount", in: "0.0001", decimals: 18, want: "100000000000000"},
		{name: "zero decimals", in: "42", decimals: 0, want: "42"},
		{name: "leading zeros allowed", in: "007", decimals: 2, want: "700"},
		{name: "exact fraction width", in: "1.23", decimals: 2, want: "123"},
		{name: "fraction too wide", in: "1.234", decimals: 2, wantErr: ErrInvalidFormat},
		{name: "missing fraction digits", in: "1.", decimals: 2, wantErr: ErrInvalidFormat},
		{name: "missing whole digits", in: ".5", decimals: 2, wantErr: ErrInvalidFormat},
		{name: "negative", in: "-1", decimals: 2, wantErr: ErrInvalidFormat},
		{name: "not a number", in: "abc", decimals: 2, wantErr: ErrInvalidFormat},
		{name: "empty", in: "", decimals: 2, wantErr: ErrInvalidFormat},
		{name: "fraction with zero decimals", in: "1.0", decimals: 0, wantErr: ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToUnits(tt.in, tt.decimals)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ToUnits(%q, %d) error = %v, want %v", tt.in, tt.decimals, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToUnits(%q, %d) error = %v", tt.in, tt.decimals, err)
			}
			if got.String() != tt.want {
				t.Errorf("ToUnits(%q, %d) = %s, want %s", tt.in, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals int
		want     string
		wantErr  error
	}{
		{name: "whole amount", in: "6000000000000000000", decimals: 18, want: "6.000000000000000000"},
		{name: "small amount pads left", in: "100000000000000", decimals: 18, want: "0.000100000000000000"},
		{name: "zero", in: "0", decimals: 18, want: "0.000000000000000000"},
		{name: "zero decimals omits point", in: "42", decimals: 0, want: "42"},
		{name: "negative rejected", in: "-1", decimals: 18, wantErr: ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := new(big.Int).SetString(tt.in, 10)
			got, err := ToDecimal(n, tt.decimals)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ToDecimal(%s, %d) error = %v, want %v", tt.in, tt.decimals, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToDecimal(%s, %d) error = %v", tt.in, tt.decimals, err)
			}
			if got != tt.want {
				t.Errorf("ToDecimal(%s, %d) = %q, want %q", tt.in, tt.decimals, got, tt.want)
			}
		})
	}
}

// Round trip: ToUnits(ToDecimal(x, d), d) == x for all x >= 0.
func TestUnitsRoundTrip(t *testing.T) {
	values := []string{"0", "1", "999", "1000000", "6000000000000000000", "115792089237316195423570985008687907853269984665640564039457584007913129639935"}
	for _, v := range values {
		for _, decimals := range []int{0, 1, 6, 18} {
			x, _ := new(big.Int).SetString(v, 10)
			s, err := ToDecimal(x, decimals)
			if err != nil {
				t.Fatalf("ToDecimal(%s, %d) error = %v", v, decimals, err)
			}
			back, err := ToUnits(s, decimals)
			if err != nil {
				t.Fatalf("ToUnits(%q, %d) error = %v", s, decimals, err)
			}
			if back.Cmp(x) != 0 {
				t.Errorf("round trip %s with %d decimals: got %s via %q", v, decimals, back, s)
			}
		}
	}
}
