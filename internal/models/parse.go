package models

import "strconv"

// ParseFloat converts an exchange-supplied numeric string. Empty strings and
// unparseable values report ok=false so callers can skip the field instead of
// failing the whole record.
func ParseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseInt converts an exchange-supplied integer string, typically an epoch
// millisecond timestamp.
func ParseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLevel converts one [price, size] string pair into a PriceLevel.
func ParseLevel(pair []string) (PriceLevel, bool) {
	if len(pair) < 2 {
		return PriceLevel{}, false
	}
	price, ok := ParseFloat(pair[0])
	if !ok {
		return PriceLevel{}, false
	}
	size, ok := ParseFloat(pair[1])
	if !ok {
		return PriceLevel{}, false
	}
	return PriceLevel{Price: price, Size: size}, true
}
