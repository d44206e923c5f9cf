package tiff

import (
	"strings"
	"testing"

	"github.com/jdeng/goslide/internal/tifftest"
)

// memClient serves a fixture byte image through the Client contract.
type memClient struct {
	data   []byte
	pos    int64
	closed bool
}

func (c *memClient) Read(p []byte) int {
	if c.pos >= int64(len(c.data)) {
		return 0
	}
	n := copy(p, c.data[c.pos:])
	c.pos += int64(n)
	return n
}

func (c *memClient) Write(p []byte) int { return 0 }

func (c *memClient) Seek(off int64, whence int) int64 {
	var pos int64
	switch whence {
	case 0:
		pos = off
	case 1:
		pos = c.pos + off
	case 2:
		pos = int64(len(c.data)) + off
	default:
		return -1
	}
	if pos < 0 {
		return -1
	}
	c.pos = pos
	return pos
}

func (c *memClient) Close() int {
	c.closed = true
	return 0
}

func (c *memClient) Size() int64 { return int64(len(c.data)) }

func mustOpen(t *testing.T, data []byte) *Reader {
	t.Helper()
	r, err := ClientOpen("fixture", &memClient{data: data})
	if err != nil {
		t.Fatalf("ClientOpen failed: %v", err)
	}
	return r
}

func TestClientOpen_LittleEndian(t *testing.T) {
	data := tifftest.Build(tifftest.Options{},
		tifftest.Dir{Width: 64, Height: 48, TileWidth: 32, TileHeight: 32},
		tifftest.Dir{Width: 20, Height: 10, Description: "thumbnail image"},
	)
	r := mustOpen(t, data)
	if r.NumDirectories() != 2 {
		t.Fatalf("got %d directories, want 2", r.NumDirectories())
	}
	if r.IsBigTIFF() {
		t.Fatal("classic container reported as BigTIFF")
	}
	if !r.IsTiled() {
		t.Fatal("directory 0 should be tiled")
	}
	if w, _ := r.TagUint(TagImageWidth); w != 64 {
		t.Fatalf("got width %d, want 64", w)
	}

	if err := r.SetDirectory(1); err != nil {
		t.Fatalf("SetDirectory(1): %v", err)
	}
	if r.IsTiled() {
		t.Fatal("directory 1 should be stripped")
	}
	desc, ok := r.TagString(TagImageDescription)
	if !ok || desc != "thumbnail image" {
		t.Fatalf("got description %q (%v), want %q", desc, ok, "thumbnail image")
	}
	if h, _ := r.TagUint(TagImageLength); h != 10 {
		t.Fatalf("got height %d, want 10", h)
	}
}

func TestClientOpen_BigEndian(t *testing.T) {
	data := tifftest.Build(tifftest.Options{BigEndian: true},
		tifftest.Dir{Width: 32, Height: 32, TileWidth: 16, TileHeight: 16},
	)
	r := mustOpen(t, data)
	if w, _ := r.TagUint(TagImageWidth); w != 32 {
		t.Fatalf("got width %d, want 32", w)
	}
	if tw, _ := r.TagUint(TagTileWidth); tw != 16 {
		t.Fatalf("got tile width %d, want 16", tw)
	}
}

func TestClientOpen_BigTIFF(t *testing.T) {
	data := tifftest.Build(tifftest.Options{BigTIFF: true},
		tifftest.Dir{Width: 64, Height: 32, TileWidth: 32, TileHeight: 16},
		tifftest.Dir{Width: 16, Height: 8},
	)
	r := mustOpen(t, data)
	if !r.IsBigTIFF() {
		t.Fatal("BigTIFF container not detected")
	}
	if r.NumDirectories() != 2 {
		t.Fatalf("got %d directories, want 2", r.NumDirectories())
	}
	offs, ok := r.TagUints(TagTileOffsets)
	if !ok || len(offs) != 4 {
		t.Fatalf("got %d tile offsets (%v), want 4", len(offs), ok)
	}
}

func TestClientOpen_BadMagic(t *testing.T) {
	cases := [][]byte{
		nil,
		{'I'},
		{'X', 'Y', 42, 0},
		{'I', 'I'}, // no version word
	}
	for _, data := range cases {
		if _, err := ClientOpen("bad", &memClient{data: data}); err == nil {
			t.Fatalf("ClientOpen accepted %v", data)
		}
	}
}

func TestClientOpen_BadVersion(t *testing.T) {
	data := []byte{'I', 'I', 99, 0, 8, 0, 0, 0}
	if _, err := ClientOpen("bad", &memClient{data: data}); err == nil {
		t.Fatal("ClientOpen accepted version 99")
	}
}

func TestClientOpen_TruncatedIFD(t *testing.T) {
	data := tifftest.Build(tifftest.Options{},
		tifftest.Dir{Width: 32, Height: 32, TileWidth: 16, TileHeight: 16},
	)
	if _, err := ClientOpen("trunc", &memClient{data: data[:len(data)-10]}); err == nil {
		t.Fatal("ClientOpen accepted truncated container")
	}
}

func TestSetDirectory_OutOfRange(t *testing.T) {
	data := tifftest.Build(tifftest.Options{}, tifftest.Dir{Width: 16, Height: 16})
	r := mustOpen(t, data)
	if err := r.SetDirectory(1); err == nil {
		t.Fatal("SetDirectory(1) succeeded on a one-directory container")
	}
	if err := r.SetDirectory(-1); err == nil {
		t.Fatal("SetDirectory(-1) succeeded")
	}
	if !strings.Contains(r.SetDirectory(5).Error(), "no directory 5") {
		t.Fatal("unexpected SetDirectory error text")
	}
}

func TestClose(t *testing.T) {
	data := tifftest.Build(tifftest.Options{}, tifftest.Dir{Width: 16, Height: 16})
	c := &memClient{data: data}
	r, err := ClientOpen("fixture", c)
	if err != nil {
		t.Fatalf("ClientOpen failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !c.closed {
		t.Fatal("client not closed")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
