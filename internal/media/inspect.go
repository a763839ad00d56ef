package media

import (
	"fmt"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"
)

// ImageInfo captures the decoded header of an input image.
type ImageInfo struct {
	Path   string
	Width  int
	Height int
	Format string
}

// Inspect decodes the image header and returns its natural size. A file that
// cannot be decoded is an input error, never silently substituted.
func Inspect(path string) (ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("open image %s: %w", path, err)
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("decode image %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("image %s has invalid dimensions %dx%d", path, cfg.Width, cfg.Height)
	}

	return ImageInfo{
		Path:   path,
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
	}, nil
}

// InspectBundle inspects every image the template requires and returns the
// info keyed by slot. Missing or undecodable images surface as errors keyed
// to their slot.
func InspectBundle(bundle Bundle, requiredSlots []string) (map[string]ImageInfo, error) {
	infos := make(map[string]ImageInfo, len(requiredSlots))
	for _, slot := range requiredSlots {
		path, ok := bundle.ImageFor(slot)
		if !ok {
			return nil, fmt.Errorf("media slot %q has no image", slot)
		}
		info, err := Inspect(path)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", slot, err)
		}
		infos[slot] = info
	}
	return infos, nil
}
