package session

import "sort"

// DefaultPresets are the built-in filter instructions.
var DefaultPresets = map[string]string{
	"sepia":      "Apply a warm sepia tone to the whole photo, like an old print.",
	"noir":       "Convert the photo to high-contrast black and white film noir style.",
	"vintage":    "Give the photo a faded 1970s film look with soft grain and muted colors.",
	"watercolor": "Repaint the photo as a loose watercolor painting with soft edges and paper texture.",
	"anime":      "Redraw the photo in a clean anime illustration style.",
	"cyberpunk":  "Restyle the photo with neon cyberpunk lighting in magenta and cyan.",
}

// PresetNames returns the names of presets in sorted order.
func PresetNames(presets map[string]string) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
