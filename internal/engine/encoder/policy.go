package encoder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCategory is returned under the Reject policy when a categorical
// value is not one of the attribute's allowed values.
var ErrUnknownCategory = errors.New("unknown category")

// UnknownPolicy selects what Encode does with a value outside an attribute's
// allowed list, or with an attribute that has no value at all.
type UnknownPolicy int

const (
	// Warn emits all-zero indicators and logs the attribute and value.
	Warn UnknownPolicy = iota
	// ZeroFill emits all-zero indicators silently.
	ZeroFill
	// Reject fails the encode with ErrUnknownCategory.
	Reject
)

func (p UnknownPolicy) String() string {
	switch p {
	case ZeroFill:
		return "zero"
	case Reject:
		return "reject"
	default:
		return "warn"
	}
}

// ParsePolicy converts "zero", "warn" or "reject" to an UnknownPolicy.
func ParsePolicy(s string) (UnknownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zero", "zerofill", "zero_fill":
		return ZeroFill, nil
	case "warn", "":
		return Warn, nil
	case "reject":
		return Reject, nil
	default:
		return Warn, fmt.Errorf("encoder: unknown category policy %q (want zero, warn or reject)", s)
	}
}
