package slide

import (
	"fmt"
	"sync"

	"github.com/jdeng/goslide/internal/tiff"
)

// handleRef is the weak back-reference an associated image holds to the
// handle it decodes through. The adapter never owns the handle, which may
// be closed out from under it; the owner invalidates the reference on
// close so decode attempts fail cleanly instead of touching a dead
// handle.
type handleRef struct {
	mu sync.Mutex
	h  *Handle
}

func (r *handleRef) get() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.h
}

func (r *handleRef) invalidate() {
	r.mu.Lock()
	r.h = nil
	r.mu.Unlock()
}

// AssociatedImage presents one embedded non-pyramid image (thumbnail,
// label, macro) as a self-contained image object. Pixels are decoded on
// demand on every GetPixels call, never cached.
type AssociatedImage struct {
	name   string
	ref    *handleRef
	dir    int
	width  int
	height int
}

// Name returns the name the image was registered under.
func (a *AssociatedImage) Name() string { return a.name }

// Width returns the pixel width captured at discovery time.
func (a *AssociatedImage) Width() int { return a.width }

// Height returns the pixel height captured at discovery time.
func (a *AssociatedImage) Height() int { return a.height }

// GetPixels decodes the full image into dst, which must hold at least
// Width*Height packed ARGB pixels. The directory's dimensions are
// re-read and must still match the values captured at discovery; a
// mismatch means the handle no longer points at the resource the image
// was discovered on.
func (a *AssociatedImage) GetPixels(dst []uint32) error {
	h := a.ref.get()
	if h == nil || h.closed {
		return fmt.Errorf("can't read %s associated image: %w", a.name, ErrHandleClosed)
	}
	if len(dst) < a.width*a.height {
		return fmt.Errorf("can't read %s associated image: destination holds %d pixels, need %d",
			a.name, len(dst), a.width*a.height)
	}
	r := h.Reader()
	if err := r.SetDirectory(a.dir); err != nil {
		return fmt.Errorf("can't read %s associated image: %w", a.name, err)
	}
	w, wok := r.TagUint(tiff.TagImageWidth)
	ht, hok := r.TagUint(tiff.TagImageLength)
	if !wok || !hok || int(w) != a.width || int(ht) != a.height {
		return fmt.Errorf("can't read %s associated image: dimensions changed: expected %dx%d, got %dx%d",
			a.name, a.width, a.height, w, ht)
	}
	if err := DecodeRegion(h, dst, 0, 0, a.width, a.height); err != nil {
		return fmt.Errorf("can't read %s associated image: %w", a.name, err)
	}
	return nil
}

// Destroy drops the adapter's reference to its handle. The handle itself
// is unaffected; further GetPixels calls fail as if it were closed.
func (a *AssociatedImage) Destroy() {
	a.ref = &handleRef{}
}

// Registry holds the associated images discovered at container-open time,
// addressed by name in discovery order.
type Registry struct {
	names  []string
	byName map[string]*AssociatedImage
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*AssociatedImage)}
}

// Add discovers directory dir of h as a named associated image: the
// dimension tags must be present and the compression scheme must be one
// the decoder supports. The registered image holds only a weak reference
// to h.
func (reg *Registry) Add(name string, h *Handle, dir int) error {
	if _, dup := reg.byName[name]; dup {
		return fmt.Errorf("can't read %s associated image: duplicate name", name)
	}
	r := h.Reader()
	if err := r.SetDirectory(dir); err != nil {
		return fmt.Errorf("can't read %s associated image: %w", name, err)
	}
	w, ok := r.TagUint(tiff.TagImageWidth)
	if !ok {
		return fmt.Errorf("can't read %s associated image: missing required tag %d", name, tiff.TagImageWidth)
	}
	ht, ok := r.TagUint(tiff.TagImageLength)
	if !ok {
		return fmt.Errorf("can't read %s associated image: missing required tag %d", name, tiff.TagImageLength)
	}
	comp := r.TagUintDefault(tiff.TagCompression, tiff.CompressionNone)
	if !tiff.CompressionSupported(comp) {
		return fmt.Errorf("can't read %s associated image: unsupported compression %d", name, comp)
	}

	img := &AssociatedImage{
		name:   name,
		ref:    h.weakRef(),
		dir:    dir,
		width:  int(w),
		height: int(ht),
	}
	reg.names = append(reg.names, name)
	reg.byName[name] = img
	return nil
}

// Get returns the named image, if registered.
func (reg *Registry) Get(name string) (*AssociatedImage, bool) {
	img, ok := reg.byName[name]
	return img, ok
}

// Names returns the registered names in discovery order.
func (reg *Registry) Names() []string {
	return append([]string(nil), reg.names...)
}
