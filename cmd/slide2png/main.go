// Command slide2png inspects whole-slide images and exports their pixels
// as PNG files.
package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jdeng/goslide/pkg/slide"
)

func main() {
	root := &cobra.Command{
		Use:           "slide2png",
		Short:         "Inspect and export whole-slide images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(infoCmd(), assocCmd(), regionCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "slide2png:", err)
		os.Exit(1)
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <slide>",
		Short: "Print pyramid levels and associated images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := slide.Open(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			for i, lv := range s.Levels() {
				fmt.Printf("level %d: %dx%d (directory %d, %dx%d tiles)\n",
					i, lv.Width, lv.Height, lv.Directory, lv.TileWidth, lv.TileHeight)
			}
			for _, name := range s.AssociatedImageNames() {
				w, h, err := s.AssociatedImageSize(name)
				if err != nil {
					return err
				}
				fmt.Printf("associated %q: %dx%d\n", name, w, h)
			}
			return nil
		},
	}
}

func assocCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "assoc <slide> [name...]",
		Short: "Export associated images as PNG (all of them by default)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := slide.Open(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			names := args[1:]
			if len(names) == 0 {
				names = s.AssociatedImageNames()
			}
			var g errgroup.Group
			for _, name := range names {
				name := name
				g.Go(func() error {
					px, w, h, err := s.ReadAssociatedImage(name)
					if err != nil {
						return err
					}
					out := filepath.Join(outDir, sanitize(name)+".png")
					return writePNG(out, px, w, h)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}

func regionCmd() *cobra.Command {
	var (
		level, x, y, w, h int
		out               string
	)
	cmd := &cobra.Command{
		Use:   "region <slide>",
		Short: "Export a rectangular region of a pyramid level as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := slide.Open(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if w == 0 || h == 0 {
				lv, err := s.Level(level)
				if err != nil {
					return err
				}
				w, h = lv.Width, lv.Height
			}
			px, err := s.ReadRegion(level, x, y, w, h)
			if err != nil {
				return err
			}
			return writePNG(out, px, w, h)
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "pyramid level")
	cmd.Flags().IntVar(&x, "x", 0, "left edge in level pixels")
	cmd.Flags().IntVar(&y, "y", 0, "top edge in level pixels")
	cmd.Flags().IntVar(&w, "width", 0, "region width (0 for the whole level)")
	cmd.Flags().IntVar(&h, "height", 0, "region height (0 for the whole level)")
	cmd.Flags().StringVarP(&out, "out", "o", "region.png", "output file")
	return cmd
}

// writePNG unpacks ARGB words into an NRGBA image and writes it out.
func writePNG(path string, px []uint32, w, h int) error {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, v := range px[:w*h] {
		img.SetNRGBA(i%w, i/w, color.NRGBA{
			R: uint8(v >> 16),
			G: uint8(v >> 8),
			B: uint8(v),
			A: uint8(v >> 24),
		})
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func sanitize(name string) string {
	out := []rune(name)
	for i, r := range out {
		if r == '/' || r == ' ' {
			out[i] = '_'
		}
	}
	return string(out)
}
