package tiff

import (
	"strings"
	"testing"

	"github.com/jdeng/goslide/internal/tifftest"
)

// gradientNative returns the expected native packed RGBA word for the
// default fixture gradient at (x, y).
func gradientNative(x, y int) uint32 {
	r := uint32(byte(x*7 + y*13))
	g := uint32(byte(x*7 + y*13 + 29))
	b := uint32(byte(x*7 + y*13 + 58))
	return r | g<<8 | b<<16 | 0xff000000
}

func renderFixture(t *testing.T, d tifftest.Dir, opts tifftest.Options, x, y, w, h int) []uint32 {
	t.Helper()
	r := mustOpen(t, tifftest.Build(opts, d))
	dst := make([]uint32, w*h)
	if err := r.RGBARead(x, y, w, h, dst); err != nil {
		t.Fatalf("RGBARead failed: %v", err)
	}
	return dst
}

func checkGradient(t *testing.T, dst []uint32, x0, y0, w, h int) {
	t.Helper()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := gradientNative(x0+x, y0+y)
			if got := dst[y*w+x]; got != want {
				t.Fatalf("pixel (%d,%d): got %#08x, want %#08x", x, y, got, want)
			}
		}
	}
}

func TestRGBARead_FullTiled(t *testing.T) {
	d := tifftest.Dir{Width: 48, Height: 40, TileWidth: 16, TileHeight: 16}
	dst := renderFixture(t, d, tifftest.Options{}, 0, 0, 48, 40)
	checkGradient(t, dst, 0, 0, 48, 40)
}

func TestRGBARead_TiledSubrect(t *testing.T) {
	// Crosses tile boundaries on both axes.
	d := tifftest.Dir{Width: 48, Height: 40, TileWidth: 16, TileHeight: 16}
	dst := renderFixture(t, d, tifftest.Options{}, 10, 12, 25, 20)
	checkGradient(t, dst, 10, 12, 25, 20)
}

func TestRGBARead_BigEndianTiled(t *testing.T) {
	d := tifftest.Dir{Width: 32, Height: 32, TileWidth: 16, TileHeight: 16}
	dst := renderFixture(t, d, tifftest.Options{BigEndian: true}, 0, 0, 32, 32)
	checkGradient(t, dst, 0, 0, 32, 32)
}

func TestRGBARead_Stripped(t *testing.T) {
	d := tifftest.Dir{Width: 30, Height: 20, RowsPerStrip: 7}
	dst := renderFixture(t, d, tifftest.Options{}, 0, 0, 30, 20)
	checkGradient(t, dst, 0, 0, 30, 20)
}

func TestRGBARead_LZW(t *testing.T) {
	d := tifftest.Dir{Width: 32, Height: 32, TileWidth: 16, TileHeight: 16, Compression: CompressionLZW}
	dst := renderFixture(t, d, tifftest.Options{}, 0, 0, 32, 32)
	checkGradient(t, dst, 0, 0, 32, 32)
}

func TestRGBARead_LZWStripped(t *testing.T) {
	d := tifftest.Dir{Width: 30, Height: 20, RowsPerStrip: 7, Compression: CompressionLZW}
	dst := renderFixture(t, d, tifftest.Options{}, 0, 0, 30, 20)
	checkGradient(t, dst, 0, 0, 30, 20)
}

func TestRGBARead_Deflate(t *testing.T) {
	d := tifftest.Dir{Width: 32, Height: 32, TileWidth: 16, TileHeight: 16, Compression: CompressionDeflate}
	dst := renderFixture(t, d, tifftest.Options{}, 0, 0, 32, 32)
	checkGradient(t, dst, 0, 0, 32, 32)
}

func TestRGBARead_Grayscale(t *testing.T) {
	d := tifftest.Dir{Width: 16, Height: 8, SamplesPerPixel: 1, Photometric: PhotometricMinIsBlack}
	dst := renderFixture(t, d, tifftest.Options{}, 0, 0, 16, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			v := uint32(byte(x*7 + y*13))
			want := v | v<<8 | v<<16 | 0xff000000
			if got := dst[y*16+x]; got != want {
				t.Fatalf("pixel (%d,%d): got %#08x, want %#08x", x, y, got, want)
			}
		}
	}
}

func TestRGBARead_SparseTileIsBlack(t *testing.T) {
	d := tifftest.Dir{
		Width: 32, Height: 32, TileWidth: 16, TileHeight: 16,
		Sparse: map[int]bool{0: true},
	}
	dst := renderFixture(t, d, tifftest.Options{}, 0, 0, 32, 32)
	if dst[0] != 0xff000000 {
		t.Fatalf("sparse tile pixel: got %#08x, want opaque black", dst[0])
	}
	// Tile 1 still renders.
	if got, want := dst[16], gradientNative(16, 0); got != want {
		t.Fatalf("pixel (16,0): got %#08x, want %#08x", got, want)
	}
}

func TestRGBARead_BeyondEdgeIsBlack(t *testing.T) {
	d := tifftest.Dir{Width: 20, Height: 20, TileWidth: 16, TileHeight: 16}
	dst := renderFixture(t, d, tifftest.Options{}, 10, 10, 20, 20)
	// Inside the image.
	if got, want := dst[0], gradientNative(10, 10); got != want {
		t.Fatalf("pixel (10,10): got %#08x, want %#08x", got, want)
	}
	// Past the right edge.
	if got := dst[15]; got != 0xff000000 {
		t.Fatalf("out-of-bounds pixel: got %#08x, want opaque black", got)
	}
}

func TestRGBARead_JPEG(t *testing.T) {
	w, h := 32, 32
	pix := make([]byte, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = 100, 150, 200
	}
	d := tifftest.Dir{
		Width: w, Height: h, TileWidth: 16, TileHeight: 16,
		Compression: CompressionJPEG, Photometric: PhotometricYCbCr, Pix: pix,
	}
	dst := renderFixture(t, d, tifftest.Options{}, 0, 0, w, h)
	v := dst[(h/2)*w+w/2]
	r, g, b := int(v&0xff), int(v>>8&0xff), int(v>>16&0xff)
	for _, diff := range []int{r - 100, g - 150, b - 200} {
		if diff < -8 || diff > 8 {
			t.Fatalf("JPEG pixel drifted: got (%d,%d,%d), want about (100,150,200)", r, g, b)
		}
	}
	if v>>24 != 0xff {
		t.Fatalf("JPEG alpha: got %#02x, want 0xff", v>>24)
	}
}

func TestRGBACheck_UnsupportedCompression(t *testing.T) {
	d := tifftest.Dir{Width: 16, Height: 16, Compression: CompressionPackBits}
	r := mustOpen(t, tifftest.Build(tifftest.Options{}, d))
	err := r.RGBACheck()
	if err == nil {
		t.Fatal("RGBACheck accepted PackBits")
	}
	if !strings.Contains(err.Error(), "unsupported compression 32773") {
		t.Fatalf("unexpected diagnostic: %v", err)
	}
}

func TestRGBACheck_BadBitDepth(t *testing.T) {
	d := tifftest.Dir{Width: 16, Height: 16, BitsPerSample: 16}
	r := mustOpen(t, tifftest.Build(tifftest.Options{}, d))
	err := r.RGBACheck()
	if err == nil || !strings.Contains(err.Error(), "16-bit samples") {
		t.Fatalf("RGBACheck on 16-bit samples: %v", err)
	}
}

func TestRGBACheck_Orientation(t *testing.T) {
	top := tifftest.Dir{Width: 16, Height: 16, Orientation: 1}
	r := mustOpen(t, tifftest.Build(tifftest.Options{}, top))
	if err := r.RGBACheck(); err != nil {
		t.Fatalf("RGBACheck rejected top-left orientation: %v", err)
	}

	flipped := tifftest.Dir{Width: 16, Height: 16, Orientation: 4}
	r = mustOpen(t, tifftest.Build(tifftest.Options{}, flipped))
	err := r.RGBACheck()
	if err == nil || !strings.Contains(err.Error(), "unsupported orientation 4") {
		t.Fatalf("RGBACheck on bottom-left orientation: %v", err)
	}
}

func TestRGBARead_BadArguments(t *testing.T) {
	d := tifftest.Dir{Width: 16, Height: 16}
	r := mustOpen(t, tifftest.Build(tifftest.Options{}, d))
	if err := r.RGBARead(0, 0, 0, 4, nil); err == nil {
		t.Fatal("RGBARead accepted zero width")
	}
	if err := r.RGBARead(0, 0, 4, 4, make([]uint32, 3)); err == nil {
		t.Fatal("RGBARead accepted short destination")
	}
}

func TestCompressionSupported(t *testing.T) {
	for _, code := range []uint64{CompressionNone, CompressionLZW, CompressionJPEG, CompressionDeflate, CompressionDeflateOld} {
		if !CompressionSupported(code) {
			t.Fatalf("compression %d should be supported", code)
		}
	}
	for _, code := range []uint64{CompressionCCITTRLE, CompressionCCITTFax4, CompressionJPEGOld, CompressionPackBits} {
		if CompressionSupported(code) {
			t.Fatalf("compression %d should not be supported", code)
		}
	}
}
