package tiff

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image/jpeg"
	"io"

	"golang.org/x/image/tiff/lzw"
)

// maxRenderPixels bounds a single render request.
const maxRenderPixels = 1 << 30

// RGBACheck reports whether the selected directory can be rendered as
// packed RGBA. The returned error text is the render diagnostic callers
// are expected to surface as-is.
func (r *Reader) RGBACheck() error {
	comp := r.TagUintDefault(TagCompression, CompressionNone)
	if !CompressionSupported(comp) {
		return fmt.Errorf("tiff: %s: unsupported compression %d", r.name, comp)
	}
	bits := r.TagUintDefault(TagBitsPerSample, 1)
	if bits != 8 {
		return fmt.Errorf("tiff: %s: cannot handle %d-bit samples", r.name, bits)
	}
	photo, ok := r.TagUint(TagPhotometric)
	if !ok {
		return fmt.Errorf("tiff: %s: missing required tag %d", r.name, TagPhotometric)
	}
	switch photo {
	case PhotometricMinIsBlack, PhotometricRGB:
	case PhotometricYCbCr:
		if comp != CompressionJPEG {
			return fmt.Errorf("tiff: %s: cannot handle YCbCr without JPEG compression", r.name)
		}
	default:
		return fmt.Errorf("tiff: %s: unsupported photometric interpretation %d", r.name, photo)
	}
	if o := r.TagUintDefault(TagOrientation, OrientationTopLeft); o != OrientationTopLeft {
		return fmt.Errorf("tiff: %s: unsupported orientation %d", r.name, o)
	}
	return nil
}

// blockLayout describes where the compressed pixel blocks of a directory
// live: a tile grid, or strips modeled as full-width tiles.
type blockLayout struct {
	imageWidth, imageHeight int
	blockWidth, blockHeight int
	across                  int // blocks per row
	offsets, counts         []uint64
}

func (r *Reader) layout() (*blockLayout, error) {
	iw, ok := r.TagUint(TagImageWidth)
	if !ok {
		return nil, fmt.Errorf("tiff: %s: missing required tag %d", r.name, TagImageWidth)
	}
	ih, ok := r.TagUint(TagImageLength)
	if !ok {
		return nil, fmt.Errorf("tiff: %s: missing required tag %d", r.name, TagImageLength)
	}
	l := &blockLayout{imageWidth: int(iw), imageHeight: int(ih)}
	if l.imageWidth <= 0 || l.imageHeight <= 0 ||
		uint64(l.imageWidth)*uint64(l.imageHeight) > maxRenderPixels {
		return nil, fmt.Errorf("tiff: %s: implausible image dimensions %dx%d", r.name, iw, ih)
	}

	if r.IsTiled() {
		tw := r.TagUintDefault(TagTileWidth, 0)
		th := r.TagUintDefault(TagTileLength, 0)
		if tw == 0 || th == 0 || tw%16 != 0 || th%16 != 0 {
			return nil, fmt.Errorf("tiff: %s: bad tile geometry %dx%d", r.name, tw, th)
		}
		l.blockWidth, l.blockHeight = int(tw), int(th)
		l.offsets, _ = r.TagUints(TagTileOffsets)
		l.counts, _ = r.TagUints(TagTileByteCounts)
	} else {
		rps := r.TagUintDefault(TagRowsPerStrip, uint64(l.imageHeight))
		if rps == 0 || rps > uint64(l.imageHeight) {
			rps = uint64(l.imageHeight)
		}
		l.blockWidth, l.blockHeight = l.imageWidth, int(rps)
		l.offsets, _ = r.TagUints(TagStripOffsets)
		l.counts, _ = r.TagUints(TagStripByteCounts)
	}
	if len(l.offsets) == 0 {
		return nil, fmt.Errorf("tiff: %s: directory has no pixel data", r.name)
	}
	l.across = (l.imageWidth + l.blockWidth - 1) / l.blockWidth
	return l, nil
}

// RGBARead renders the (x, y, w, h) rectangle of the selected directory
// into dst as packed native-order RGBA (R in the low byte, A in the high
// byte). Storage must be top-left; directories declaring another
// orientation fail RGBACheck. Blocks with a zero offset or byte count
// render as opaque black, matching the tolerant RGBA path of the
// reference decoders.
func (r *Reader) RGBARead(x, y, w, h int, dst []uint32) error {
	if w <= 0 || h <= 0 || uint64(w)*uint64(h) > maxRenderPixels {
		return fmt.Errorf("tiff: %s: bad region %dx%d", r.name, w, h)
	}
	if len(dst) < w*h {
		return fmt.Errorf("tiff: %s: destination holds %d pixels, need %d", r.name, len(dst), w*h)
	}
	if err := r.RGBACheck(); err != nil {
		return err
	}
	l, err := r.layout()
	if err != nil {
		return err
	}

	comp := r.TagUintDefault(TagCompression, CompressionNone)
	photo := r.TagUintDefault(TagPhotometric, PhotometricMinIsBlack)
	spp := int(r.TagUintDefault(TagSamplesPerPixel, 1))
	if spp < 1 || spp > 4 {
		return fmt.Errorf("tiff: %s: cannot handle %d samples per pixel", r.name, spp)
	}

	// Opaque black background for pixels no block covers.
	for i := range dst[:w*h] {
		dst[i] = 0xff000000
	}

	col0 := clamp(x/l.blockWidth, 0, l.across)
	col1 := clamp((x+w+l.blockWidth-1)/l.blockWidth, 0, l.across)
	down := (l.imageHeight + l.blockHeight - 1) / l.blockHeight
	row0 := clamp(y/l.blockHeight, 0, down)
	row1 := clamp((y+h+l.blockHeight-1)/l.blockHeight, 0, down)

	for row := row0; row < row1; row++ {
		for col := col0; col < col1; col++ {
			idx := row*l.across + col
			if idx >= len(l.offsets) {
				continue
			}
			var count uint64
			if idx < len(l.counts) {
				count = l.counts[idx]
			}
			if l.offsets[idx] == 0 || count == 0 {
				continue // sparse block, keep background
			}
			block, err := r.decodeBlock(l, comp, photo, spp, idx, count)
			if err != nil {
				return err
			}
			copyBlock(dst, w, h, x, y, block, l, col, row)
		}
	}
	return nil
}

// decodeBlock loads, decompresses and packs one tile or strip as native
// RGBA covering the full block extent.
func (r *Reader) decodeBlock(l *blockLayout, comp, photo uint64, spp, idx int, count uint64) ([]uint32, error) {
	if count > maxTagValueBytes {
		return nil, fmt.Errorf("tiff: %s: block %d too large (%d bytes)", r.name, idx, count)
	}
	data := make([]byte, count)
	if !readAt(r.c, int64(l.offsets[idx]), data) {
		return nil, fmt.Errorf("tiff: %s: cannot read block %d", r.name, idx)
	}

	bw, bh := l.blockWidth, l.blockHeight
	if comp == CompressionJPEG {
		return r.decodeJPEGBlock(data, bw, bh)
	}

	raw := make([]byte, bw*bh*spp)
	switch comp {
	case CompressionNone:
		copy(raw, data)
	case CompressionLZW:
		rc := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		_, err := io.ReadFull(rc, raw)
		rc.Close()
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("tiff: %s: LZW block %d: %w", r.name, idx, err)
		}
	case CompressionDeflate, CompressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("tiff: %s: deflate block %d: %w", r.name, idx, err)
		}
		_, err = io.ReadFull(zr, raw)
		zr.Close()
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("tiff: %s: deflate block %d: %w", r.name, idx, err)
		}
	default:
		return nil, fmt.Errorf("tiff: %s: unsupported compression %d", r.name, comp)
	}

	px := make([]uint32, bw*bh)
	for i := range px {
		var red, green, blue, alpha byte
		alpha = 0xff
		switch {
		case photo == PhotometricMinIsBlack || spp == 1:
			v := raw[i]
			red, green, blue = v, v, v
		default:
			o := i * spp
			red, green, blue = raw[o], raw[o+1], raw[o+2]
			if spp == 4 {
				alpha = raw[o+3]
			}
		}
		px[i] = uint32(red) | uint32(green)<<8 | uint32(blue)<<16 | uint32(alpha)<<24
	}
	return px, nil
}

// decodeJPEGBlock decodes a JPEG-compressed block, splicing in the shared
// JPEGTables stream when the directory carries one.
func (r *Reader) decodeJPEGBlock(data []byte, bw, bh int) ([]uint32, error) {
	if tables, ok := r.TagBytes(TagJPEGTables); ok && len(tables) > 4 &&
		len(data) > 2 && data[0] == 0xff && data[1] == 0xd8 {
		// tables = SOI .. tables .. EOI; insert the middle after the
		// block's own SOI marker.
		spliced := make([]byte, 0, len(data)+len(tables)-4)
		spliced = append(spliced, data[:2]...)
		spliced = append(spliced, tables[2:len(tables)-2]...)
		spliced = append(spliced, data[2:]...)
		data = spliced
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tiff: %s: JPEG block: %w", r.name, err)
	}
	px := make([]uint32, bw*bh)
	for i := range px {
		px[i] = 0xff000000
	}
	b := img.Bounds()
	for yy := 0; yy < bh && yy < b.Dy(); yy++ {
		for xx := 0; xx < bw && xx < b.Dx(); xx++ {
			cr, cg, cb, ca := img.At(b.Min.X+xx, b.Min.Y+yy).RGBA()
			px[yy*bw+xx] = uint32(cr>>8) | uint32(cg>>8)<<8 | uint32(cb>>8)<<16 | uint32(ca>>8)<<24
		}
	}
	return px, nil
}

// copyBlock copies the intersection of a decoded block with the request
// rectangle into dst.
func copyBlock(dst []uint32, w, h, x, y int, block []uint32, l *blockLayout, col, row int) {
	bx := col * l.blockWidth
	by := row * l.blockHeight

	sx0 := max(x, bx)
	sy0 := max(y, by)
	sx1 := min(x+w, min(bx+l.blockWidth, l.imageWidth))
	sy1 := min(y+h, min(by+l.blockHeight, l.imageHeight))
	if sx1 <= sx0 {
		return
	}
	for sy := sy0; sy < sy1; sy++ {
		srcRow := block[(sy-by)*l.blockWidth:]
		dstRow := dst[(sy-y)*w:]
		copy(dstRow[sx0-x:sx1-x], srcRow[sx0-bx:sx1-bx])
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
