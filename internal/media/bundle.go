package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"reelforge/pkg/content"
)

// Bundle is the immutable set of caller-provided inputs: one image per
// template slot, optional audio, optional b-roll clips. The pipeline never
// mutates a bundle or the files it points at.
type Bundle struct {
	Images map[string]string // slot -> image path
	Audio  string            // optional audio path
	BRoll  []string          // optional clip paths
}

// ImageFor resolves the image path for a template slot. The process slot
// falls back to the before image when no dedicated process shot exists.
func (b Bundle) ImageFor(slot string) (string, bool) {
	if path, ok := b.Images[slot]; ok && path != "" {
		return path, true
	}
	if slot == content.SlotProcess {
		if path, ok := b.Images[content.SlotBefore]; ok && path != "" {
			return path, true
		}
	}
	return "", false
}

// Slots returns the bundle's populated image slots in sorted order.
func (b Bundle) Slots() []string {
	slots := make([]string, 0, len(b.Images))
	for slot := range b.Images {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

var audioExtensions = map[string]bool{
	".mp3": true,
	".m4a": true,
	".aac": true,
	".wav": true,
}

var clipExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
}

// FromDir builds a bundle by convention from a media directory: image files
// named after their slot (before.jpg, after.png, process.jpg), the first
// audio file found, and any clip files as b-roll.
func FromDir(dir string) (Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Bundle{}, fmt.Errorf("read media dir: %w", err)
	}

	bundle := Bundle{Images: make(map[string]string)}
	knownSlots := map[string]bool{
		content.SlotBefore:  true,
		content.SlotProcess: true,
		content.SlotAfter:   true,
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		full := filepath.Join(dir, name)

		switch {
		case imageExtensions[ext] && knownSlots[base]:
			bundle.Images[base] = full
		case audioExtensions[ext]:
			if bundle.Audio == "" {
				bundle.Audio = full
			}
		case clipExtensions[ext]:
			bundle.BRoll = append(bundle.BRoll, full)
		}
	}
	sort.Strings(bundle.BRoll)

	return bundle, nil
}
