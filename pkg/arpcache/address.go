package arpcache

import (
	"errors"
	"strings"
)

// ErrInvalidAddress is returned for tokens that do not look like a
// colon-delimited hardware address.
var ErrInvalidAddress = errors.New("invalid hardware address")

// NormalizeAddress returns the canonical form of a hardware address:
// lower-case hex, colon separated, every octet padded to two digits.
// macOS arp does not pad octets, so "0:2a:43:4:b:51" and
// "00:2A:43:04:0B:51" both normalize to "00:2a:43:04:0b:51".
//
// Only EUI-48 and EUI-64 addresses are accepted.
func NormalizeAddress(raw string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	if addr == "" {
		return "", ErrInvalidAddress
	}

	octets := strings.Split(addr, ":")
	if len(octets) != 6 && len(octets) != 8 {
		return "", ErrInvalidAddress
	}

	for i, octet := range octets {
		if len(octet) == 0 || len(octet) > 2 || !isHex(octet) {
			return "", ErrInvalidAddress
		}
		if len(octet) == 1 {
			octets[i] = "0" + octet
		}
	}

	return strings.Join(octets, ":"), nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
