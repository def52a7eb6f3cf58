package types

import (
	"fmt"
	"slices"
)

// TestFlag marks a declared test with extra semantics understood by the collector.
type TestFlag string

// String implements the Stringer interface for TestFlag
func (f TestFlag) String() string {
	return string(f)
}

// TestFlag enum values
const (
	FlagInactive   TestFlag = "inactive"
	FlagNoRollback TestFlag = "no-rollback"
	FlagFlaky      TestFlag = "flaky"
	FlagSlow       TestFlag = "slow"
)

// flagBits is the wire encoding of each flag inside the flags bitmask.
var flagBits = map[TestFlag]int{
	FlagInactive:   1,
	FlagNoRollback: 2,
	FlagFlaky:      4,
	FlagSlow:       8,
}

// ParseTestFlag converts a flag name into a TestFlag
func ParseTestFlag(name string) (TestFlag, error) {
	f := TestFlag(name)
	if _, ok := flagBits[f]; !ok {
		return "", fmt.Errorf("unknown test flag %q", name)
	}
	return f, nil
}

// FlagsValue folds a list of flags into the bitmask sent with each descriptor.
// Unknown and repeated flags do not change the value.
func FlagsValue(flags []TestFlag) int {
	value := 0
	for _, f := range flags {
		value |= flagBits[f]
	}
	return value
}

// HasFlag reports whether flag is part of flags
func HasFlag(flags []TestFlag, flag TestFlag) bool {
	return slices.Contains(flags, flag)
}
