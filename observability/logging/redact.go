package logging

import (
	"log/slog"
	"strings"
)

// addressEdge is the number of characters kept on each side of a masked
// address.
const addressEdge = 8

// MaskAddress shortens a display address to its prefix and tail, e.g.
// "sim1qypq...x7k2m9a0". Short values are returned unchanged.
func MaskAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) <= 2*addressEdge+3 {
		return addr
	}
	return addr[:addressEdge] + "..." + addr[len(addr)-addressEdge:]
}

// Address returns a slog.Attr carrying the masked form of addr.
func Address(key, addr string) slog.Attr {
	return slog.String(key, MaskAddress(addr))
}
