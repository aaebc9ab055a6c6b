package protocol

import "strings"

// palette is the 20-entry color table PlayerProfile.Color is assigned from,
// indexed by a controller's join order modulo len(palette). Collisions
// beyond 20 concurrent players are expected and accepted — see DESIGN.md.
var palette = [20]string{
	"#38bdf8", "#f472b6", "#a78bfa", "#34d399", "#fbbf24",
	"#fb923c", "#f87171", "#60a5fa", "#2dd4bf", "#c084fc",
	"#facc15", "#4ade80", "#818cf8", "#fb7185", "#22d3ee",
	"#a3e635", "#e879f9", "#fcd34d", "#67e8f9", "#bef264",
}

// ColorForJoinIndex returns the normalized, canonical color for the n-th
// controller to join a room (n is the room's controller count *before*
// insertion).
func ColorForJoinIndex(n int) string {
	return NormalizeColor(palette[n%len(palette)])
}

// NormalizeColor lowercases a "#RRGGBB" hex color and falls back to
// palette[0] if the input is malformed.
func NormalizeColor(color string) string {
	c := strings.ToLower(color)
	if len(c) != 7 || c[0] != '#' {
		return palette[0]
	}
	for _, r := range c[1:] {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return palette[0]
		}
	}
	return c
}
