// Command bbic-debug prints the structure of a bbic container: every stack,
// its levels, every volume, and its LODs, plus an optional WebP preview of
// one stack slice.
// Adapted from the teacher's cmd/debug, which did the same thing for a
// single COG file.
package main

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/gen2brain/webp"

	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: bbic-debug <container-dir> [--webp-preview <out.webp> [--stack N] [--level N] [--slice N]]")
		os.Exit(1)
	}
	path := os.Args[1]

	s, err := store.NewDirStore(path)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	c, err := bbic.Open(s)
	if err != nil {
		fmt.Printf("Error opening container: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Container %q: version=%d, num_stacks=%d, num_volumes=%d\n",
		path, c.Version, c.NumStacks, c.NumVolumes)

	for i := 0; i < int(c.NumStacks); i++ {
		debugStack(c, i)
	}
	for i := 0; i < int(c.NumVolumes); i++ {
		debugVolume(c, i)
	}

	if preview := flagValue("--webp-preview"); preview != "" {
		if err := writeWebpPreview(c, preview); err != nil {
			fmt.Printf("Error writing webp preview: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote preview to %s\n", preview)
	}
}

func debugStack(c *bbic.Container, index int) {
	s, err := c.GetStack(index)
	if err != nil {
		fmt.Printf("Stack %d: error: %v\n", index, err)
		return
	}
	fmt.Printf("%s\n", s)
	for level := 0; level < s.NumLevels; level++ {
		l, err := s.GetLevel(level)
		if err != nil {
			fmt.Printf("  level %d: error: %v\n", level, err)
			continue
		}
		fmt.Printf("  %s\n", l)
	}
}

func debugVolume(c *bbic.Container, index int) {
	v, err := c.GetVolume(index)
	if err != nil {
		fmt.Printf("Volume %d: error: %v\n", index, err)
		return
	}
	fmt.Printf("%s\n", v)
	for level := 0; level < v.LODCount(); level++ {
		lod, err := v.GetLOD(level)
		if err != nil {
			fmt.Printf("  lod %d: error: %v\n", level, err)
			continue
		}
		fmt.Printf("  %s\n", lod)
	}
}

// writeWebpPreview reads a single stack slice and re-encodes it as WebP, a
// genuine exercise of the gen2brain/webp encode path. The lossless-vs-lossy question is left to webp's default
// encoder options; bbic's own on-disk tiles never use WebP (see the Format
// enum in internal/codec), so this is purely a debug-time rendering aid.
func writeWebpPreview(c *bbic.Container, outPath string) error {
	stackIndex := intFlag("--stack", 0)
	level := intFlag("--level", 0)
	slice := intFlag("--slice", 0)

	s, err := c.GetStack(stackIndex)
	if err != nil {
		return fmt.Errorf("opening stack %d: %w", stackIndex, err)
	}
	l, err := s.GetLevel(level)
	if err != nil {
		return fmt.Errorf("opening level %d of stack %d: %w", level, stackIndex, err)
	}
	gray, err := l.GetImage(slice, 0)
	if err != nil {
		return fmt.Errorf("reading slice %d: %w", slice, err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %q: %w", outPath, err)
	}
	defer f.Close()

	return webp.Encode(f, grayToRGBA(gray), webp.Options{Quality: 90})
}

// grayToRGBA widens an 8-bit luminance raster to RGBA, since webp.Encode
// (like image/png and image/jpeg) expects a general image.Image and
// gen2brain/webp's encoder path is built around full-color input.
func grayToRGBA(gray *image.Gray) *image.RGBA {
	bounds := gray.Bounds()
	rgba := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			rgba.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return rgba
}

// flagValue does a minimal linear scan for "--name value" in os.Args,
// mirroring the teacher's debug tool's preference for no flag-parsing
// dependency in a tool this small.
func flagValue(name string) string {
	for i, a := range os.Args {
		if a == name && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	return ""
}

func intFlag(name string, def int) int {
	v := flagValue(name)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}
