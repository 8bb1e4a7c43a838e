package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// ScaleExponent picks one of the fixed scale factors 10^0 .. 10^19.
type ScaleExponent uint8

const (
	E0 ScaleExponent = iota
	E1
	E2
	E3
	E4
	E5
	E6
	E7
	E8
	E9
	E10
	E11
	E12
	E13
	E14
	E15
	E16
	E17
	E18
	E19
)

var scaleFactors = [...]uint64{
	1,
	10,
	100,
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
	100_000_000_000,
	1_000_000_000_000,
	10_000_000_000_000,
	100_000_000_000_000,
	1_000_000_000_000_000,
	10_000_000_000_000_000,
	100_000_000_000_000_000,
	1_000_000_000_000_000_000,
	10_000_000_000_000_000_000,
}

func (e ScaleExponent) Valid() bool {
	return int(e) < len(scaleFactors)
}

// Factor is the number of base units in one lot.
func (e ScaleExponent) Factor() (uint64, error) {
	if !e.Valid() {
		return 0, fmt.Errorf("%w: E%d", ErrInvalidExponent, e)
	}
	return scaleFactors[e], nil
}

func (e ScaleExponent) String() string {
	return "E" + strconv.Itoa(int(e))
}

// ParseScaleExponent accepts "E3", "e3" or "3".
func ParseScaleExponent(s string) (ScaleExponent, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToUpper(s), "E"), 10, 8)
	if err != nil || !ScaleExponent(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExponent, s)
	}
	return ScaleExponent(n), nil
}
