package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zpin/lcdbank/rgb565"
)

// Cache loads images lazily and keeps them for the life of the process.
// Cached images are shared and must not be modified.
type Cache struct {
	mu     sync.Mutex
	images map[string]*rgb565.Image
	dir    string
	log    zerolog.Logger
}

// NewCache returns an empty cache. dir is the media directory used by
// Named; it may be empty.
func NewCache(dir string, log zerolog.Logger) *Cache {
	return &Cache{
		images: map[string]*rgb565.Image{},
		dir:    dir,
		log:    log,
	}
}

// Get returns the image at path, loading it on first use. Failed loads are
// not cached.
func (c *Cache) Get(path string) (*rgb565.Image, error) {
	return c.get(path, func() (*rgb565.Image, error) { return Load(path) })
}

func (c *Cache) get(key string, load func() (*rgb565.Image, error)) (*rgb565.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if img, ok := c.images[key]; ok {
		return img, nil
	}
	img, err := load()
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	c.log.Info().Str("image", key).Int("width", b.Dx()).Int("height", b.Dy()).Msg("loaded image")
	c.images[key] = img
	return img, nil
}

// Named resolves name for a display whose longer side is size pixels. It
// prefers <dir>/<size>/<name>.png and falls back to <dir>/<name>.svg
// rasterized to size x size.
func (c *Cache) Named(name string, size int) (*rgb565.Image, error) {
	png := filepath.Join(c.dir, strconv.Itoa(size), name+".png")
	if _, err := os.Stat(png); err == nil {
		return c.Get(png)
	}
	svg := filepath.Join(c.dir, name+".svg")
	if _, err := os.Stat(svg); err == nil {
		key := fmt.Sprintf("%s@%d", svg, size)
		return c.get(key, func() (*rgb565.Image, error) { return LoadSVG(svg, size, size) })
	}
	return nil, fmt.Errorf("media: no image %q for size %d in %s", name, size, c.dir)
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}
