package slide

import (
	"fmt"
	"math/bits"
)

// DecodeRegion renders the (x, y, w, ht) rectangle of the handle's
// currently selected directory into dst as packed ARGB (A in the high
// byte), with top-left orientation forced. The decoder's native packed
// order is converted in place after a successful render: each word is
// byte-swapped and then rotated so the alpha channel lands back on top.
//
// On any failure the first w*ht pixels of dst are zeroed so the caller
// never mistakes leftover memory for pixels. The selected directory is
// not changed.
func DecodeRegion(h *Handle, dst []uint32, x, y, w, ht int) error {
	if w <= 0 || ht <= 0 {
		return fmt.Errorf("slide: bad region %dx%d", w, ht)
	}
	if len(dst) < w*ht {
		return fmt.Errorf("slide: destination holds %d pixels, need %d", len(dst), w*ht)
	}
	if h.closed {
		clear(dst[:w*ht])
		return fmt.Errorf("slide: %s: %w", h.locator, ErrHandleClosed)
	}

	// Capability first: the library's diagnostic is surfaced verbatim and
	// is not retryable.
	if err := h.reader.RGBACheck(); err != nil {
		clear(dst[:w*ht])
		return err
	}
	if err := h.reader.RGBARead(x, y, w, ht, dst); err != nil {
		clear(dst[:w*ht])
		if h.shim.err != nil {
			return fmt.Errorf("%w (stream: %w)", err, h.shim.err)
		}
		return err
	}

	for i, v := range dst[:w*ht] {
		dst[i] = bits.RotateLeft32(bits.ReverseBytes32(v), 24)
	}
	return nil
}
