// Package slide reads tiled pyramidal whole-slide images from local files
// or HTTP(S) sources. It exposes pyramid levels, rectangular region
// decoding into packed ARGB pixels, and the embedded associated images
// (thumbnail, label, macro) slide scanners store alongside the pyramid.
package slide

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jdeng/goslide/internal/slide"
	"github.com/jdeng/goslide/internal/tiff"
)

// ErrClosed is returned by operations on a closed slide.
var ErrClosed = errors.New("slide: slide is closed")

const (
	defaultRegionCacheEntries = 64
	defaultBandRows           = 512
)

// Options configures how a slide is opened.
type Options struct {
	// HandleCacheSize bounds the idle decoder-handle pool.
	// Zero means the default (32).
	HandleCacheSize int
	// RegionCacheEntries sizes the decoded-region LRU cache. Zero means
	// the default (64); negative disables region caching.
	RegionCacheEntries int
	// BandRows is the band height used to split tall ReadRegion requests
	// across parallel decoder handles. Zero means the default (512).
	BandRows int
}

// Level describes one pyramid level, largest first.
type Level struct {
	Directory  int // directory index inside the container
	Width      int
	Height     int
	TileWidth  int
	TileHeight int
}

type regionKey struct {
	level, x, y, w, h int
}

// Slide is an open whole-slide image. All methods are safe for concurrent
// use; pixel access goes through a bounded pool of decoder handles so
// concurrent reads do not serialize on one handle.
type Slide struct {
	locator string
	opts    Options
	cache   *slide.Cache
	levels  []Level
	assoc   *slide.Registry
	regions *lru.Cache[regionKey, []uint32]

	mu        sync.Mutex
	discovery *slide.Handle // serialized under mu; associated decodes use it
	closed    bool
}

// Open opens the slide at locator (a file path or HTTP(S) URL) with
// default options.
func Open(locator string) (*Slide, error) {
	return OpenWithOptions(locator, Options{})
}

// OpenWithOptions opens a slide, enumerating its pyramid levels and
// discovering its associated images. Tiled directories become levels;
// non-tiled directories become associated images.
func OpenWithOptions(locator string, opts Options) (*Slide, error) {
	if opts.BandRows <= 0 {
		opts.BandRows = defaultBandRows
	}

	hd, err := slide.OpenContainer(locator)
	if err != nil {
		return nil, err
	}

	s := &Slide{
		locator:   locator,
		opts:      opts,
		assoc:     slide.NewRegistry(),
		discovery: hd,
	}
	r := hd.Reader()
	for dir := 0; dir < r.NumDirectories(); dir++ {
		if err := r.SetDirectory(dir); err != nil {
			hd.Close()
			return nil, err
		}
		if r.IsTiled() {
			lv := Level{
				Directory:  dir,
				Width:      int(r.TagUintDefault(tiff.TagImageWidth, 0)),
				Height:     int(r.TagUintDefault(tiff.TagImageLength, 0)),
				TileWidth:  int(r.TagUintDefault(tiff.TagTileWidth, 0)),
				TileHeight: int(r.TagUintDefault(tiff.TagTileLength, 0)),
			}
			if lv.Width <= 0 || lv.Height <= 0 {
				hd.Close()
				return nil, fmt.Errorf("slide: %s: directory %d has no dimensions", locator, dir)
			}
			s.levels = append(s.levels, lv)
			continue
		}
		name := s.associatedName(r, dir)
		if err := s.assoc.Add(name, hd, dir); err != nil {
			hd.Close()
			return nil, err
		}
	}
	if len(s.levels) == 0 {
		hd.Close()
		return nil, fmt.Errorf("slide: %s: no tiled pyramid levels", locator)
	}
	sort.SliceStable(s.levels, func(i, j int) bool {
		return s.levels[i].Width > s.levels[j].Width
	})

	s.cache = slide.NewCacheSize(locator, opts.HandleCacheSize)
	if opts.RegionCacheEntries >= 0 {
		n := opts.RegionCacheEntries
		if n == 0 {
			n = defaultRegionCacheEntries
		}
		s.regions, _ = lru.New[regionKey, []uint32](n)
	}
	return s, nil
}

// associatedName derives a stable name for the associated image in the
// selected directory: the conventional token from its description when
// present, "thumbnail" for the first unnamed one, "image N" otherwise.
func (s *Slide) associatedName(r *tiff.Reader, dir int) string {
	if desc, ok := r.TagString(tiff.TagImageDescription); ok {
		lower := strings.ToLower(desc)
		for _, token := range []string{"thumbnail", "label", "macro"} {
			if strings.Contains(lower, token) {
				if _, taken := s.assoc.Get(token); !taken {
					return token
				}
			}
		}
	}
	if _, taken := s.assoc.Get("thumbnail"); !taken {
		return "thumbnail"
	}
	return fmt.Sprintf("image %d", dir)
}

// Locator returns the resource the slide was opened from.
func (s *Slide) Locator() string { return s.locator }

// LevelCount returns the number of pyramid levels.
func (s *Slide) LevelCount() int { return len(s.levels) }

// Levels returns all pyramid levels, largest first.
func (s *Slide) Levels() []Level {
	return append([]Level(nil), s.levels...)
}

// Level returns the i-th pyramid level.
func (s *Slide) Level(i int) (Level, error) {
	if i < 0 || i >= len(s.levels) {
		return Level{}, fmt.Errorf("slide: %s: no level %d", s.locator, i)
	}
	return s.levels[i], nil
}

// Dimensions returns the pixel size of the largest level.
func (s *Slide) Dimensions() (int, int) {
	return s.levels[0].Width, s.levels[0].Height
}

// ReadRegion decodes the (x, y, w, h) rectangle of a pyramid level into a
// freshly allocated buffer of w*h packed ARGB pixels. Coordinates are
// relative to the level's top-left corner; pixels outside the level
// render opaque black. Tall requests are split into bands decoded in
// parallel, one pooled handle per band.
func (s *Slide) ReadRegion(level, x, y, w, h int) ([]uint32, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	lv, err := s.Level(level)
	if err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("slide: %s: bad region %dx%d", s.locator, w, h)
	}

	key := regionKey{level, x, y, w, h}
	if s.regions != nil {
		if px, ok := s.regions.Get(key); ok {
			return append([]uint32(nil), px...), nil
		}
	}

	dst := make([]uint32, w*h)
	if h <= s.opts.BandRows {
		if err := s.readBand(lv.Directory, x, y, w, h, dst); err != nil {
			clear(dst)
			return nil, err
		}
	} else {
		var g errgroup.Group
		for y0 := 0; y0 < h; y0 += s.opts.BandRows {
			bh := min(s.opts.BandRows, h-y0)
			band := dst[y0*w : (y0+bh)*w]
			by := y + y0
			g.Go(func() error {
				return s.readBand(lv.Directory, x, by, w, bh, band)
			})
		}
		if err := g.Wait(); err != nil {
			clear(dst)
			return nil, err
		}
	}

	if s.regions != nil {
		s.regions.Add(key, append([]uint32(nil), dst...))
	}
	return dst, nil
}

// readBand decodes one horizontal band through a pooled handle. A handle
// that failed a decode is discarded rather than returned to the pool.
func (s *Slide) readBand(dir, x, y, w, h int, dst []uint32) error {
	hd, err := s.cache.Get()
	if err != nil {
		return err
	}
	if err := hd.Reader().SetDirectory(dir); err != nil {
		s.cache.Discard(hd)
		return err
	}
	if err := slide.DecodeRegion(hd, dst, x, y, w, h); err != nil {
		s.cache.Discard(hd)
		return err
	}
	s.cache.Put(hd)
	return nil
}

// AssociatedImageNames returns the names of the embedded associated
// images in discovery order.
func (s *Slide) AssociatedImageNames() []string {
	return s.assoc.Names()
}

// AssociatedImageSize returns the dimensions captured when the named
// image was discovered.
func (s *Slide) AssociatedImageSize(name string) (int, int, error) {
	img, ok := s.assoc.Get(name)
	if !ok {
		return 0, 0, fmt.Errorf("slide: %s: no associated image %q", s.locator, name)
	}
	return img.Width(), img.Height(), nil
}

// ReadAssociatedImage decodes the named associated image and returns its
// packed ARGB pixels with its dimensions. The decode happens on every
// call; associated images are small and not worth caching.
func (s *Slide) ReadAssociatedImage(name string) ([]uint32, int, int, error) {
	img, ok := s.assoc.Get(name)
	if !ok {
		return nil, 0, 0, fmt.Errorf("slide: %s: no associated image %q", s.locator, name)
	}

	// The discovery handle backs associated decodes and is not safe for
	// concurrent use, so calls serialize here.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, 0, ErrClosed
	}
	dst := make([]uint32, img.Width()*img.Height())
	if err := img.GetPixels(dst); err != nil {
		return nil, 0, 0, err
	}
	return dst, img.Width(), img.Height(), nil
}

// Thumbnail returns the embedded thumbnail when one exists, falling back
// to a full decode of the smallest pyramid level.
func (s *Slide) Thumbnail() ([]uint32, int, int, error) {
	if _, ok := s.assoc.Get("thumbnail"); ok {
		return s.ReadAssociatedImage("thumbnail")
	}
	lv := s.levels[len(s.levels)-1]
	px, err := s.ReadRegion(len(s.levels)-1, 0, 0, lv.Width, lv.Height)
	if err != nil {
		return nil, 0, 0, err
	}
	return px, lv.Width, lv.Height, nil
}

// Close releases the slide: the discovery handle closes (which breaks the
// associated images' references), the handle pool drains, and the region
// cache empties. Close is idempotent.
func (s *Slide) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	hd := s.discovery
	s.discovery = nil
	s.mu.Unlock()

	err := hd.Close()
	s.cache.Drain()
	if s.regions != nil {
		s.regions.Purge()
	}
	return err
}
