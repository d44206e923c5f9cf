// Command create-test-tiff writes small synthetic whole-slide containers
// for manual testing of the reader and the slide2png command.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jdeng/goslide/internal/tifftest"
)

func main() {
	var outDir = flag.String("out", ".", "Output directory")
	flag.Parse()

	slides := []struct {
		name string
		opts tifftest.Options
	}{
		{"test-slide.tiff", tifftest.Options{}},
		{"test-slide-be.tiff", tifftest.Options{BigEndian: true}},
		{"test-slide-big.tiff", tifftest.Options{BigTIFF: true}},
	}
	for _, s := range slides {
		data := tifftest.Build(s.opts,
			tifftest.Dir{Width: 192, Height: 128, TileWidth: 64, TileHeight: 64},
			tifftest.Dir{Width: 96, Height: 64, TileWidth: 64, TileHeight: 64, Compression: 8},
			tifftest.Dir{Width: 48, Height: 32, Description: "thumbnail image"},
			tifftest.Dir{Width: 40, Height: 24, Description: "label image"},
		)
		path := filepath.Join(*outDir, s.name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "create-test-tiff:", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s (%d bytes)\n", path, len(data))
	}
}
