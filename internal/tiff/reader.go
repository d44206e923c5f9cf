package tiff

import (
	"encoding/binary"
	"fmt"
)

// Version words from the container header.
const (
	ClassicVersion = 42
	BigVersion     = 43
)

const (
	// maxTagValueBytes bounds the payload loaded for a single tag, in the
	// spirit of the bounded-input checks elsewhere in this module. Offset
	// arrays for heavily tiled pyramids are large but nowhere near this.
	maxTagValueBytes = 16 << 20
	maxDirectories   = 65536
)

type field struct {
	ftype uint16
	count uint64
	raw   []byte // value bytes in file byte order
}

// Directory holds the parsed tag entries of one IFD.
type Directory struct {
	fields map[uint16]field
}

// Reader decodes the directory structure of a classic or BigTIFF
// container. All bytes are pulled through the Client; nothing is memory
// mapped and pixel data stays on the source until rendered.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	name   string
	c      Client
	order  binary.ByteOrder
	big    bool
	dirs   []*Directory
	cur    int
	closed bool
}

// ClientOpen parses the header and every directory of the container read
// through c. The name is used only in diagnostics.
func ClientOpen(name string, c Client) (*Reader, error) {
	r := &Reader{name: name, c: c}

	var hdr [8]byte
	if !readAt(c, 0, hdr[:4]) {
		return nil, fmt.Errorf("tiff: %s: cannot read header", name)
	}
	switch {
	case hdr[0] == 'I' && hdr[1] == 'I':
		r.order = binary.LittleEndian
	case hdr[0] == 'M' && hdr[1] == 'M':
		r.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("tiff: %s: bad byte order mark %q", name, hdr[:2])
	}

	var next uint64
	switch version := r.order.Uint16(hdr[2:4]); version {
	case ClassicVersion:
		if !readAt(c, 4, hdr[4:8]) {
			return nil, fmt.Errorf("tiff: %s: cannot read header", name)
		}
		next = uint64(r.order.Uint32(hdr[4:8]))
	case BigVersion:
		r.big = true
		var bh [12]byte
		if !readAt(c, 4, bh[:]) {
			return nil, fmt.Errorf("tiff: %s: cannot read header", name)
		}
		if r.order.Uint16(bh[0:2]) != 8 || r.order.Uint16(bh[2:4]) != 0 {
			return nil, fmt.Errorf("tiff: %s: bad BigTIFF header", name)
		}
		next = r.order.Uint64(bh[4:12])
	default:
		return nil, fmt.Errorf("tiff: %s: bad version %d", name, version)
	}

	seen := make(map[uint64]bool)
	for next != 0 {
		if seen[next] {
			return nil, fmt.Errorf("tiff: %s: directory chain loops at offset %d", name, next)
		}
		seen[next] = true
		if len(r.dirs) >= maxDirectories {
			return nil, fmt.Errorf("tiff: %s: too many directories", name)
		}
		dir, n, err := r.parseIFD(next)
		if err != nil {
			return nil, err
		}
		r.dirs = append(r.dirs, dir)
		next = n
	}
	if len(r.dirs) == 0 {
		return nil, fmt.Errorf("tiff: %s: no directories", name)
	}
	return r, nil
}

// parseIFD loads one directory at the given offset and returns it together
// with the offset of the next directory in the chain (0 terminates).
func (r *Reader) parseIFD(off uint64) (*Directory, uint64, error) {
	var (
		entrySize  = 12
		countSize  = 2
		offsetSize = 4
	)
	if r.big {
		entrySize, countSize, offsetSize = 20, 8, 8
	}

	var cbuf [8]byte
	if !readAt(r.c, int64(off), cbuf[:countSize]) {
		return nil, 0, fmt.Errorf("tiff: %s: cannot read directory at offset %d", r.name, off)
	}
	var count uint64
	if r.big {
		count = r.order.Uint64(cbuf[:8])
	} else {
		count = uint64(r.order.Uint16(cbuf[:2]))
	}
	if count == 0 || count > 4096 {
		return nil, 0, fmt.Errorf("tiff: %s: implausible entry count %d at offset %d", r.name, count, off)
	}

	raw := make([]byte, count*uint64(entrySize)+uint64(offsetSize))
	if !readAt(r.c, int64(off)+int64(countSize), raw) {
		return nil, 0, fmt.Errorf("tiff: %s: truncated directory at offset %d", r.name, off)
	}

	dir := &Directory{fields: make(map[uint16]field, count)}
	for i := uint64(0); i < count; i++ {
		e := raw[i*uint64(entrySize) : (i+1)*uint64(entrySize)]
		tag := r.order.Uint16(e[0:2])
		ftype := r.order.Uint16(e[2:4])
		if int(ftype) >= len(typeSizes) || typeSizes[ftype] == 0 {
			continue // unknown field type, skip like libtiff does
		}
		var vcount uint64
		var value []byte
		if r.big {
			vcount = r.order.Uint64(e[4:12])
			value = e[12:20]
		} else {
			vcount = uint64(r.order.Uint32(e[4:8]))
			value = e[8:12]
		}
		size := vcount * uint64(typeSizes[ftype])
		if size > maxTagValueBytes {
			return nil, 0, fmt.Errorf("tiff: %s: tag %d value too large (%d bytes)", r.name, tag, size)
		}
		f := field{ftype: ftype, count: vcount}
		if size <= uint64(len(value)) {
			f.raw = append([]byte(nil), value[:size]...)
		} else {
			var voff uint64
			if r.big {
				voff = r.order.Uint64(value)
			} else {
				voff = uint64(r.order.Uint32(value))
			}
			f.raw = make([]byte, size)
			if !readAt(r.c, int64(voff), f.raw) {
				return nil, 0, fmt.Errorf("tiff: %s: cannot read value of tag %d", r.name, tag)
			}
		}
		dir.fields[tag] = f
	}

	nextRaw := raw[count*uint64(entrySize):]
	var next uint64
	if r.big {
		next = r.order.Uint64(nextRaw)
	} else {
		next = uint64(r.order.Uint32(nextRaw))
	}
	return dir, next, nil
}

// Name returns the locator the reader was opened with.
func (r *Reader) Name() string { return r.name }

// IsBigTIFF reports whether the container uses the 64-bit layout.
func (r *Reader) IsBigTIFF() bool { return r.big }

// NumDirectories returns the number of directories in the container.
func (r *Reader) NumDirectories() int { return len(r.dirs) }

// CurrentDirectory returns the index of the selected directory.
func (r *Reader) CurrentDirectory() int { return r.cur }

// SetDirectory selects the directory subsequent tag and pixel access
// operates on.
func (r *Reader) SetDirectory(i int) error {
	if i < 0 || i >= len(r.dirs) {
		return fmt.Errorf("tiff: %s: no directory %d", r.name, i)
	}
	r.cur = i
	return nil
}

func (r *Reader) dir() *Directory { return r.dirs[r.cur] }

// valueAt decodes the i-th value of f as an unsigned integer.
func (r *Reader) valueAt(f field, i int) uint64 {
	sz := typeSizes[f.ftype]
	b := f.raw[i*sz : (i+1)*sz]
	switch sz {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(r.order.Uint16(b))
	case 4:
		return uint64(r.order.Uint32(b))
	default:
		return r.order.Uint64(b)
	}
}

// TagUint returns the first value of the tag in the selected directory.
func (r *Reader) TagUint(tag uint16) (uint64, bool) {
	f, ok := r.dir().fields[tag]
	if !ok || f.count == 0 {
		return 0, false
	}
	return r.valueAt(f, 0), true
}

// TagUintDefault returns the tag value, or def when the tag is absent.
func (r *Reader) TagUintDefault(tag uint16, def uint64) uint64 {
	if v, ok := r.TagUint(tag); ok {
		return v
	}
	return def
}

// TagUints returns all values of the tag in the selected directory.
func (r *Reader) TagUints(tag uint16) ([]uint64, bool) {
	f, ok := r.dir().fields[tag]
	if !ok {
		return nil, false
	}
	out := make([]uint64, f.count)
	for i := range out {
		out[i] = r.valueAt(f, i)
	}
	return out, true
}

// TagString returns an ASCII tag value with the trailing NUL stripped.
func (r *Reader) TagString(tag uint16) (string, bool) {
	f, ok := r.dir().fields[tag]
	if !ok || f.ftype != typeASCII {
		return "", false
	}
	b := f.raw
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), true
}

// TagBytes returns the raw payload of the tag, used for embedded byte
// streams such as JPEG tables.
func (r *Reader) TagBytes(tag uint16) ([]byte, bool) {
	f, ok := r.dir().fields[tag]
	if !ok {
		return nil, false
	}
	return f.raw, true
}

// HasTag reports whether the selected directory carries the tag.
func (r *Reader) HasTag(tag uint16) bool {
	_, ok := r.dir().fields[tag]
	return ok
}

// IsTiled reports whether the selected directory stores tiles rather than
// strips.
func (r *Reader) IsTiled() bool {
	return r.HasTag(TagTileWidth) && r.HasTag(TagTileLength)
}

// Close closes the underlying client. The reader is unusable afterwards.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.c.Close() != 0 {
		return fmt.Errorf("tiff: %s: close failed", r.name)
	}
	return nil
}
