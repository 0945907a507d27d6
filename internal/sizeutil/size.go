// Package sizeutil parses and formats IEC-binary byte counts, such as the
// "1M", "512K", and "2G" strings accepted by treefuse's command-line flags.
package sizeutil

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSize is wrapped into every parse failure returned by ParseSize.
var ErrInvalidSize = fmt.Errorf("invalid size")

var suffixMultiplier = map[byte]uint64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize accepts a non-negative decimal integer with an optional
// case-insensitive suffix from {K, M, G, T}, each a power of 1024. Leading
// and trailing whitespace is ignored.
func ParseSize(s string) (uint64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty input", ErrInvalidSize)
	}

	body := trimmed
	multiplier := uint64(1)
	last := trimmed[len(trimmed)-1]
	if last < '0' || last > '9' {
		m, ok := suffixMultiplier[upper(last)]
		if !ok {
			return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, string(last))
		}
		multiplier = m
		body = strings.TrimSpace(trimmed[:len(trimmed)-1])
	}

	if body == "" {
		return 0, fmt.Errorf("%w: missing numeric body", ErrInvalidSize)
	}

	n, err := strconv.ParseUint(body, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidSize, body)
	}

	result := n * multiplier
	if multiplier != 1 && n != 0 && result/multiplier != n {
		return 0, fmt.Errorf("%w: %q overflows 64 bits", ErrInvalidSize, s)
	}

	return result, nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

var units = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

// HumanizeBytes renders n as a value plus IEC binary unit with two
// fractional digits, followed by the exact byte count in parentheses. The
// output is purely informational and never parsed back.
func HumanizeBytes(n uint64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B (%d)", n, n)
	}

	value := float64(n)
	unitIndex := 0
	for value >= 1024 && unitIndex < len(units)-1 {
		value /= 1024
		unitIndex++
	}

	return fmt.Sprintf("%.2f %s (%d)", value, units[unitIndex], n)
}
