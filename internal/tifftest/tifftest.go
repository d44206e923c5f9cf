// Package tifftest builds small synthetic TIFF and BigTIFF containers for
// tests and for the create-test-tiff command. The writer is deliberately
// minimal: just enough of the on-disk structure to exercise the reader.
package tifftest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"image"
	"image/jpeg"
)

// Dir describes one directory of a synthetic container.
type Dir struct {
	Width, Height         int
	TileWidth, TileHeight int // zero for a stripped directory
	RowsPerStrip          int // zero means one strip for the whole image
	Compression           uint16
	Photometric           uint16
	SamplesPerPixel       int
	BitsPerSample         int
	Orientation           uint16 // zero omits the tag
	Description           string
	// Pix holds Width*Height*SamplesPerPixel samples in row-major order.
	// When nil, GradientPix is used.
	Pix []byte
	// Sparse marks block indices to emit with a zero offset and count.
	Sparse map[int]bool
	// OmitTags drops tags from the written IFD, for error-path tests.
	OmitTags []uint16
}

// Options selects the container flavor.
type Options struct {
	BigEndian bool
	BigTIFF   bool
}

const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagOrientation      = 274
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagTileWidth        = 322
	tagTileLength       = 323
	tagTileOffsets      = 324
	tagTileByteCounts   = 325

	typeASCII = 2
	typeShort = 3
	typeLong  = 4
	typeLong8 = 16
)

// GradientPix returns the deterministic sample pattern Build uses when a
// directory has no explicit pixel data.
func GradientPix(w, h, spp int) []byte {
	pix := make([]byte, w*h*spp)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for s := 0; s < spp; s++ {
				pix[(y*w+x)*spp+s] = byte(x*7 + y*13 + s*29)
			}
		}
	}
	return pix
}

func (d *Dir) normalize() {
	if d.Compression == 0 {
		d.Compression = 1
	}
	if d.SamplesPerPixel == 0 {
		d.SamplesPerPixel = 3
	}
	if d.BitsPerSample == 0 {
		d.BitsPerSample = 8
	}
	if d.Photometric == 0 && d.SamplesPerPixel >= 3 {
		d.Photometric = 2 // RGB
	}
	if d.Pix == nil {
		d.Pix = GradientPix(d.Width, d.Height, d.SamplesPerPixel)
	}
	if d.TileWidth == 0 && d.RowsPerStrip == 0 {
		d.RowsPerStrip = d.Height
	}
}

type entry struct {
	tag, ftype uint16
	count      uint64
	data       []byte
}

type writer struct {
	out   []byte
	order binary.ByteOrder
	big   bool
}

// Build assembles a container holding the given directories.
func Build(opts Options, dirs ...Dir) []byte {
	w := &writer{order: binary.LittleEndian, big: opts.BigTIFF}
	mark := byte('I')
	if opts.BigEndian {
		w.order = binary.BigEndian
		mark = 'M'
	}

	w.out = append(w.out, mark, mark)
	if w.big {
		w.u16(43)
		w.u16(8)
		w.u16(0)
		w.u64(0) // first IFD offset, patched below
	} else {
		w.u16(42)
		w.u32(0) // first IFD offset, patched below
	}

	patch := int64(4) // where the previous next-IFD pointer lives
	if w.big {
		patch = 8
	}
	for i := range dirs {
		d := dirs[i]
		d.normalize()
		ifdOff := w.writeDir(&d)
		w.patchOffset(patch, ifdOff)
		patch = w.nextPointerPos(ifdOff, &d)
	}
	return w.out
}

func (w *writer) u16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.out = append(w.out, b[:]...)
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.out = append(w.out, b[:]...)
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.out = append(w.out, b[:]...)
}

func (w *writer) align() {
	for len(w.out)%8 != 0 {
		w.out = append(w.out, 0)
	}
}

func (w *writer) patchOffset(pos int64, off uint64) {
	if w.big {
		w.order.PutUint64(w.out[pos:pos+8], off)
	} else {
		w.order.PutUint32(w.out[pos:pos+4], uint32(off))
	}
}

// nextPointerPos returns the position of the next-IFD pointer inside the
// IFD written at off.
func (w *writer) nextPointerPos(off uint64, d *Dir) int64 {
	n := int64(len(w.entries(d, nil, nil)))
	if w.big {
		return int64(off) + 8 + n*20
	}
	return int64(off) + 2 + n*12
}

// writeDir emits the pixel blocks and then the IFD for one directory,
// returning the IFD offset.
func (w *writer) writeDir(d *Dir) uint64 {
	offsets, counts := w.writeBlocks(d)

	entries := w.entries(d, offsets, counts)

	entrySize, headSize, tailSize := 12, 2, 4
	valueField := 4
	if w.big {
		entrySize, headSize, tailSize = 20, 8, 8
		valueField = 8
	}

	w.align()
	ifdOff := uint64(len(w.out))
	ifdSize := headSize + len(entries)*entrySize + tailSize
	auxOff := ifdOff + uint64(ifdSize)
	// Round aux data placement up so external values stay word aligned.
	for auxOff%2 != 0 {
		auxOff++
	}

	var aux []byte
	if w.big {
		w.u64(uint64(len(entries)))
	} else {
		w.u16(uint16(len(entries)))
	}
	for _, e := range entries {
		w.u16(e.tag)
		w.u16(e.ftype)
		if w.big {
			w.u64(e.count)
		} else {
			w.u32(uint32(e.count))
		}
		field := make([]byte, valueField)
		if len(e.data) <= valueField {
			copy(field, e.data)
		} else {
			pos := auxOff + uint64(len(aux))
			if w.big {
				w.order.PutUint64(field, pos)
			} else {
				w.order.PutUint32(field, uint32(pos))
			}
			aux = append(aux, e.data...)
			if len(aux)%2 != 0 {
				aux = append(aux, 0)
			}
		}
		w.out = append(w.out, field...)
	}
	if w.big {
		w.u64(0) // next IFD, patched by the caller when another follows
	} else {
		w.u32(0)
	}
	for uint64(len(w.out)) < auxOff {
		w.out = append(w.out, 0)
	}
	w.out = append(w.out, aux...)
	return ifdOff
}

// writeBlocks encodes the directory's tiles or strips and returns their
// offsets and byte counts.
func (w *writer) writeBlocks(d *Dir) (offsets, counts []uint64) {
	blocks := splitBlocks(d)
	for i, b := range blocks {
		if d.Sparse[i] {
			offsets = append(offsets, 0)
			counts = append(counts, 0)
			continue
		}
		enc := encodeBlock(d, b)
		w.align()
		offsets = append(offsets, uint64(len(w.out)))
		counts = append(counts, uint64(len(enc)))
		w.out = append(w.out, enc...)
	}
	return offsets, counts
}

type block struct {
	w, h int
	pix  []byte // full block extent, zero padded at image edges
}

func splitBlocks(d *Dir) []block {
	spp := d.SamplesPerPixel
	if d.TileWidth > 0 {
		across := (d.Width + d.TileWidth - 1) / d.TileWidth
		down := (d.Height + d.TileHeight - 1) / d.TileHeight
		var out []block
		for row := 0; row < down; row++ {
			for col := 0; col < across; col++ {
				b := block{w: d.TileWidth, h: d.TileHeight}
				b.pix = make([]byte, b.w*b.h*spp)
				for ty := 0; ty < b.h; ty++ {
					sy := row*d.TileHeight + ty
					if sy >= d.Height {
						break
					}
					for tx := 0; tx < b.w; tx++ {
						sx := col*d.TileWidth + tx
						if sx >= d.Width {
							break
						}
						copy(b.pix[(ty*b.w+tx)*spp:], d.Pix[(sy*d.Width+sx)*spp:(sy*d.Width+sx+1)*spp])
					}
				}
				out = append(out, b)
			}
		}
		return out
	}

	var out []block
	for y0 := 0; y0 < d.Height; y0 += d.RowsPerStrip {
		rows := min(d.RowsPerStrip, d.Height-y0)
		b := block{w: d.Width, h: rows}
		b.pix = append([]byte(nil), d.Pix[y0*d.Width*spp:(y0+rows)*d.Width*spp]...)
		out = append(out, b)
	}
	return out
}

// lzwEncode compresses src with TIFF-variant LZW (MSB-first bit order).
// A clear code precedes every literal, so the decoder's table never grows
// and the code width stays fixed at nine bits. The output is far from
// minimal but decodes with any conforming reader.
func lzwEncode(src []byte) []byte {
	const clearCode, eoiCode = 256, 257
	var (
		out   []byte
		acc   uint32
		nbits uint
	)
	emit := func(code uint32) {
		acc = acc<<9 | code
		nbits += 9
		for nbits >= 8 {
			out = append(out, byte(acc>>(nbits-8)))
			nbits -= 8
		}
	}
	for _, b := range src {
		emit(clearCode)
		emit(uint32(b))
	}
	emit(eoiCode)
	if nbits > 0 {
		out = append(out, byte(acc<<(8-nbits)))
	}
	return out
}

func encodeBlock(d *Dir, b block) []byte {
	switch d.Compression {
	case 1:
		return b.pix
	case 5:
		return lzwEncode(b.pix)
	case 8, 32946:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		zw.Write(b.pix)
		zw.Close()
		return buf.Bytes()
	case 7:
		img := image.NewRGBA(image.Rect(0, 0, b.w, b.h))
		for y := 0; y < b.h; y++ {
			for x := 0; x < b.w; x++ {
				o := (y*b.w + x) * d.SamplesPerPixel
				p := img.PixOffset(x, y)
				img.Pix[p] = b.pix[o]
				img.Pix[p+1] = b.pix[o+1]
				img.Pix[p+2] = b.pix[o+2]
				img.Pix[p+3] = 0xff
			}
		}
		var buf bytes.Buffer
		jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
		return buf.Bytes()
	default:
		// Unknown schemes store raw samples under a lying compression
		// tag; useful for unsupported-compression fixtures.
		return b.pix
	}
}

// entries builds the sorted tag entry list for a directory. It is also
// used with nil offsets to size an IFD before writing it.
func (w *writer) entries(d *Dir, offsets, counts []uint64) []entry {
	spp := d.SamplesPerPixel
	var es []entry

	es = append(es,
		w.longEntry(tagImageWidth, uint64(d.Width)),
		w.longEntry(tagImageLength, uint64(d.Height)),
		w.shortsEntry(tagBitsPerSample, repeat16(uint16(d.BitsPerSample), spp)),
		w.shortsEntry(tagCompression, []uint16{d.Compression}),
		w.shortsEntry(tagPhotometric, []uint16{d.Photometric}),
		w.shortsEntry(tagSamplesPerPixel, []uint16{uint16(spp)}),
	)
	if d.Orientation != 0 {
		es = append(es, w.shortsEntry(tagOrientation, []uint16{d.Orientation}))
	}
	if d.Description != "" {
		data := append([]byte(d.Description), 0)
		es = append(es, entry{tag: tagImageDescription, ftype: typeASCII, count: uint64(len(data)), data: data})
	}
	if d.TileWidth > 0 {
		es = append(es,
			w.longEntry(tagTileWidth, uint64(d.TileWidth)),
			w.longEntry(tagTileLength, uint64(d.TileHeight)),
			w.longsEntry(tagTileOffsets, offsets),
			w.longsEntry(tagTileByteCounts, counts),
		)
	} else {
		es = append(es,
			w.longEntry(tagRowsPerStrip, uint64(d.RowsPerStrip)),
			w.longsEntry(tagStripOffsets, offsets),
			w.longsEntry(tagStripByteCounts, counts),
		)
	}

	if len(d.OmitTags) > 0 {
		kept := es[:0]
		for _, e := range es {
			omit := false
			for _, t := range d.OmitTags {
				if e.tag == t {
					omit = true
				}
			}
			if !omit {
				kept = append(kept, e)
			}
		}
		es = kept
	}

	// TIFF requires ascending tag order.
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && es[j].tag < es[j-1].tag; j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
	return es
}

func repeat16(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (w *writer) shortsEntry(tag uint16, vals []uint16) entry {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		w.order.PutUint16(data[i*2:], v)
	}
	return entry{tag: tag, ftype: typeShort, count: uint64(len(vals)), data: data}
}

func (w *writer) longEntry(tag uint16, v uint64) entry {
	return w.longsEntry(tag, []uint64{v})
}

// longsEntry encodes values as LONG for classic containers and LONG8 for
// BigTIFF, exercising the reader's 8-byte value path.
func (w *writer) longsEntry(tag uint16, vals []uint64) entry {
	if w.big {
		data := make([]byte, 8*len(vals))
		for i, v := range vals {
			w.order.PutUint64(data[i*8:], v)
		}
		return entry{tag: tag, ftype: typeLong8, count: uint64(len(vals)), data: data}
	}
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		w.order.PutUint32(data[i*4:], uint32(v))
	}
	return entry{tag: tag, ftype: typeLong, count: uint64(len(vals)), data: data}
}
