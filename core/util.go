package core

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// NowFunc returns the current time in UTC.
var NowFunc = func() time.Time { return time.Now().UTC() } // mockable

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// ColorFor derives a stable `#rrggbb` display colour from `s`.
func ColorFor(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("#%06x", h.Sum32()&0xffffff)
}
