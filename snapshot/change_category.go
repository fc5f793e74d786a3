package snapshot

import (
	"fmt"
	"strconv"
	"strings"
)

// ChangeCategory classifies how a change to a model affects its data and its downstream consumers.
//
// Lower values are more severe. The ordering is part of the contract: MostSevere relies on it.
type ChangeCategory int

const (
	// Breaking changes require a backfill of the snapshot and all of its downstream consumers.
	Breaking ChangeCategory = iota + 1
	// NonBreaking changes require a backfill of the snapshot only.
	NonBreaking
	// ForwardOnly changes reuse the previous physical table and only apply to new data.
	ForwardOnly
	// IndirectBreaking is inherited from a Breaking change upstream.
	IndirectBreaking
	// IndirectNonBreaking is inherited from a NonBreaking change upstream.
	IndirectNonBreaking
)

var changeCategoryNames = map[ChangeCategory]string{
	Breaking:            "BREAKING",
	NonBreaking:         "NON_BREAKING",
	ForwardOnly:         "FORWARD_ONLY",
	IndirectBreaking:    "INDIRECT_BREAKING",
	IndirectNonBreaking: "INDIRECT_NON_BREAKING",
}

// ParseChangeCategory parses a category from its name (case-insensitive) or its ordinal.
func ParseChangeCategory(value string) (ChangeCategory, error) {
	value = strings.TrimSpace(value)

	if ordinal, err := strconv.Atoi(value); err == nil {
		category := ChangeCategory(ordinal)
		if !category.IsValid() {
			return 0, fmt.Errorf("%w: %d", ErrUnknownChangeCategory, ordinal)
		}

		return category, nil
	}

	normalized := strings.ToUpper(strings.ReplaceAll(value, "-", "_"))
	for category, name := range changeCategoryNames {
		if name == normalized {
			return category, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownChangeCategory, value)
}

func (c ChangeCategory) IsValid() bool {
	return c >= Breaking && c <= IndirectNonBreaking
}

func (c ChangeCategory) String() string {
	if name, ok := changeCategoryNames[c]; ok {
		return name
	}

	return "UNKNOWN(" + strconv.Itoa(int(c)) + ")"
}

func (c ChangeCategory) IsBreaking() bool            { return c == Breaking }
func (c ChangeCategory) IsNonBreaking() bool         { return c == NonBreaking }
func (c ChangeCategory) IsForwardOnly() bool         { return c == ForwardOnly }
func (c ChangeCategory) IsIndirectBreaking() bool    { return c == IndirectBreaking }
func (c ChangeCategory) IsIndirectNonBreaking() bool { return c == IndirectNonBreaking }

// IsIndirect reports whether the category was inherited from an upstream change.
func (c ChangeCategory) IsIndirect() bool {
	return c == IndirectBreaking || c == IndirectNonBreaking
}

// ReusesPreviousVersion reports whether a snapshot in this category keeps the physical table of its
// previous version, if there is one.
func (c ChangeCategory) ReusesPreviousVersion() bool {
	return c == ForwardOnly || c == IndirectNonBreaking
}

// Compare returns a negative number when c is more severe than other, a positive number when it is less
// severe, and zero when both are equal.
func (c ChangeCategory) Compare(other ChangeCategory) int {
	return int(c) - int(other)
}

// MostSevere returns the most severe of the given categories. The second result is false if none was given.
func MostSevere(categories ...ChangeCategory) (ChangeCategory, bool) {
	if len(categories) == 0 {
		return 0, false
	}

	mostSevere := categories[0]
	for _, category := range categories[1:] {
		if category.Compare(mostSevere) < 0 {
			mostSevere = category
		}
	}

	return mostSevere, true
}

// MarshalJSON encodes the category as its ordinal.
func (c ChangeCategory) MarshalJSON() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChangeCategory, int(c))
	}

	return []byte(strconv.Itoa(int(c))), nil
}

// UnmarshalJSON accepts the ordinal as well as the quoted name or ordinal.
func (c *ChangeCategory) UnmarshalJSON(data []byte) error {
	category, err := ParseChangeCategory(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}

	*c = category

	return nil
}
