package snapshot

import (
	"hash/crc32"
	"strconv"
	"strings"
)

const (
	hashSeparator = ";"

	// nullSentinel stands in for absent values so that nil and "" hash differently.
	nullSentinel = "\x00"
)

// EmptyHash is the hash of an empty input sequence.
var EmptyHash = Hash()

// Hash computes the deterministic checksum of the ordered values.
//
// The result is the decimal CRC-32 (IEEE) of the values joined by ";".
// It is stable across processes and implementations, but it is not meant to resist tampering.
func Hash(values ...string) string {
	return strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(strings.Join(values, hashSeparator)))), 10)
}

// HashNullable computes the checksum of the ordered values where nil entries are absent values.
func HashNullable(values ...*string) string {
	parts := make([]string, len(values))
	for i, value := range values {
		parts[i] = nullableString(value)
	}

	return Hash(parts...)
}

func nullableString(value *string) string {
	if value == nil {
		return nullSentinel
	}

	return *value
}

// hashInput collects the ordered values of one hash computation.
type hashInput struct {
	parts []string
}

func (h *hashInput) add(values ...string) {
	h.parts = append(h.parts, values...)
}

// addOptional adds value, treating "" as absent.
func (h *hashInput) addOptional(value string) {
	if value == "" {
		h.parts = append(h.parts, nullSentinel)
		return
	}

	h.parts = append(h.parts, value)
}

func (h *hashInput) addNullable(value *string) {
	h.parts = append(h.parts, nullableString(value))
}

func (h *hashInput) sum() string {
	return Hash(h.parts...)
}
