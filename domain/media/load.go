package media

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// LoadDir decodes every PNG or JPEG in dir in name order. EXIF orientation is
// applied on load.
func LoadDir(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("media: read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("media: %s: %w", dir, ErrEmpty)
	}
	sort.Strings(names)
	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := imaging.Open(filepath.Join(dir, name), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("media: decode %s: %w", name, err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}
