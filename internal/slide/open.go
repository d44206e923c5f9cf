package slide

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jdeng/goslide/internal/tiff"
)

// ErrNotTIFF marks a locator whose header is not a recognized container.
var ErrNotTIFF = errors.New("not a TIFF file")

// ErrHandleClosed marks an operation against a handle that has been
// closed out from under the caller.
var ErrHandleClosed = errors.New("slide handle is closed")

// Handle is one open decoder session bound to one stream. The two are
// created together and closed together; neither outlives the other. A
// Handle is not safe for concurrent use — exclusivity is the caller's
// job, normally via a Cache.
type Handle struct {
	locator string
	reader  *tiff.Reader
	shim    *clientShim
	ref     *handleRef
	closed  bool
}

// clientShim adapts a Stream to the decoder's pull contract. The decoder
// speaks in byte counts, so stream errors are recorded here and threaded
// back into open and decode diagnostics instead of being collapsed into
// "zero bytes read".
type clientShim struct {
	stream Stream
	err    error // last read/seek/close failure
}

func (s *clientShim) Read(p []byte) int {
	n, err := s.stream.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
		return 0
	}
	return n
}

// Write always refuses: slides are read-only through this path.
func (s *clientShim) Write(p []byte) int { return 0 }

func (s *clientShim) Seek(offset int64, whence int) int64 {
	pos, err := s.stream.Seek(offset, whence)
	if err != nil {
		s.err = err
		return -1
	}
	return pos
}

func (s *clientShim) Close() int {
	if err := s.stream.Close(); err != nil {
		s.err = err
		return -1
	}
	return 0
}

func (s *clientShim) Size() int64 { return s.stream.Size() }

// checkHeader validates the byte-order mark and version word so malformed
// input never reaches the decoder's own header parser. The stream is left
// positioned after the version word; the decoder rewinds itself.
func checkHeader(st Stream, locator string) error {
	var mark [2]byte
	if _, err := io.ReadFull(st, mark[:]); err != nil {
		return fmt.Errorf("slide: couldn't read TIFF magic number for %s: %w", locator, err)
	}
	if mark[0] != mark[1] {
		return fmt.Errorf("slide: %w: %s", ErrNotTIFF, locator)
	}
	var order binary.ByteOrder
	switch mark[0] {
	case 'M':
		order = binary.BigEndian
	case 'I':
		order = binary.LittleEndian
	case 0:
		return fmt.Errorf("slide: couldn't read TIFF magic number for %s", locator)
	default:
		return fmt.Errorf("slide: %w: %s", ErrNotTIFF, locator)
	}

	var word [2]byte
	if _, err := io.ReadFull(st, word[:]); err != nil {
		return fmt.Errorf("slide: couldn't read TIFF version for %s: %w", locator, err)
	}
	switch order.Uint16(word[:]) {
	case tiff.ClassicVersion, tiff.BigVersion:
		return nil
	default:
		return fmt.Errorf("slide: %w: %s", ErrNotTIFF, locator)
	}
}

// OpenContainer opens a single, uncached decoder handle for locator. Any
// failure after the stream is open closes the stream before returning.
// The decoder only ever reads through the callback shim, so the backing
// store is never memory mapped.
func OpenContainer(locator string) (*Handle, error) {
	st, err := OpenStream(locator)
	if err != nil {
		return nil, fmt.Errorf("slide: couldn't open %s: %w", locator, err)
	}
	return openOnStream(locator, st)
}

// openOnStream runs header validation and the decoder open against an
// already-open stream, taking ownership of it.
func openOnStream(locator string, st Stream) (*Handle, error) {
	if err := checkHeader(st, locator); err != nil {
		st.Close()
		return nil, err
	}

	shim := &clientShim{stream: st}
	r, err := tiff.ClientOpen(locator, shim)
	if err != nil {
		if shim.err != nil {
			err = fmt.Errorf("%w (stream: %w)", err, shim.err)
		}
		st.Close()
		return nil, fmt.Errorf("slide: invalid TIFF: %w", err)
	}

	h := &Handle{locator: locator, reader: r, shim: shim}
	h.ref = &handleRef{h: h}
	return h, nil
}

// Reader exposes the decoder bound to this handle.
func (h *Handle) Reader() *tiff.Reader { return h.reader }

// Locator returns the resource the handle was opened against.
func (h *Handle) Locator() string { return h.locator }

// StreamErr returns the last error the underlying stream reported through
// the callback shim, or nil.
func (h *Handle) StreamErr() error { return h.shim.err }

// weakRef returns the back-reference associated images hold; it is
// invalidated when the handle closes.
func (h *Handle) weakRef() *handleRef { return h.ref }

// Close invalidates outstanding weak references and closes the decoder
// together with its stream. Closing twice is a no-op.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.ref.invalidate()
	if err := h.reader.Close(); err != nil {
		if h.shim.err != nil {
			return fmt.Errorf("slide: closing %s: %w", h.locator, h.shim.err)
		}
		return fmt.Errorf("slide: closing %s: %w", h.locator, err)
	}
	return nil
}
