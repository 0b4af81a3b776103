package combinator

import (
	"fmt"
	"strings"
)

// Operator selects the reduction a Combinator applies to its inputs.
type Operator int

const (
	OpSum Operator = iota
	OpAverage
	OpAnd
	OpOr
	OpXor
	OpCustom
	OpProduct
	OpMin
	OpMax
	OpMedian
	OpNand
	OpNor
	OpXnor
)

var operatorNames = map[Operator]string{
	OpSum:     "sum",
	OpAverage: "average",
	OpAnd:     "and",
	OpOr:      "or",
	OpXor:     "xor",
	OpCustom:  "custom",
	OpProduct: "product",
	OpMin:     "min",
	OpMax:     "max",
	OpMedian:  "median",
	OpNand:    "nand",
	OpNor:     "nor",
	OpXnor:    "xnor",
}

var operatorAliases = map[string]Operator{
	"addition":       OpSum,
	"add":            OpSum,
	"+":              OpSum,
	"avg":            OpAverage,
	"multiply":       OpProduct,
	"multiplication": OpProduct,
	"*":              OpProduct,
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("operator(%d)", int(o))
}

// Bitwise reports whether o folds bit patterns rather than magnitudes.
func (o Operator) Bitwise() bool {
	switch o {
	case OpAnd, OpOr, OpXor, OpNand, OpNor, OpXnor:
		return true
	default:
		return false
	}
}

// ParseOperator accepts canonical names and the short aliases used in table
// and network descriptions. Matching is case-insensitive.
func ParseOperator(name string) (Operator, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for op, canonical := range operatorNames {
		if canonical == key {
			return op, nil
		}
	}
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unknown combinator operator: %q", name)
}

// OverflowPolicy decides what happens when a result does not fit the output
// width. The zero value truncates.
type OverflowPolicy int

const (
	OverflowTruncate OverflowPolicy = iota
	OverflowSaturate
	OverflowFail
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowTruncate:
		return "truncate"
	case OverflowSaturate:
		return "saturate"
	case OverflowFail:
		return "fail"
	default:
		return fmt.Sprintf("overflow(%d)", int(p))
	}
}

func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "truncate", "wrap":
		return OverflowTruncate, nil
	case "saturate", "clamp":
		return OverflowSaturate, nil
	case "fail", "error":
		return OverflowFail, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy: %q", name)
	}
}

// Rounding applies to Average and to the even-count Median. Nearest rounds
// halves up.
type Rounding int

const (
	RoundFloor Rounding = iota
	RoundNearest
	RoundCeiling
)

func (r Rounding) String() string {
	switch r {
	case RoundFloor:
		return "floor"
	case RoundNearest:
		return "nearest"
	case RoundCeiling:
		return "ceiling"
	default:
		return fmt.Sprintf("rounding(%d)", int(r))
	}
}

func ParseRounding(name string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "floor":
		return RoundFloor, nil
	case "nearest", "round":
		return RoundNearest, nil
	case "ceiling", "ceil":
		return RoundCeiling, nil
	default:
		return 0, fmt.Errorf("unknown rounding mode: %q", name)
	}
}
