package source

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bluebrain/bbic/internal/cluster"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, value uint8) {
	t.Helper()
	im := image.NewGray(image.Rect(0, 0, w, h))
	for i := range im.Pix {
		im.Pix[i] = value
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, im))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestFileStackPatternExpansion(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		writePNG(t, filepath.Join(dir, "s"+string(rune('0'+i))+".png"), 2, 2, 0)
	}
	// rename to match a %d pattern starting at 0
	for i := 0; i < 3; i++ {
		require.NoError(t, os.Rename(
			filepath.Join(dir, "s"+string(rune('0'+i))+".png"),
			filepath.Join(dir, "slice_0"+string(rune('0'+i))+".png")))
	}
	pattern := filepath.Join(dir, "slice_0%d.png")
	fs, err := NewFileStack(pattern)
	require.NoError(t, err)
	require.Equal(t, 3, fs.NumSlices())
}

func TestFileStackFileListSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 2, 2, 0)
	writePNG(t, filepath.Join(dir, "b.png"), 2, 2, 0)
	listPath := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(listPath, []byte(
		filepath.Join(dir, "a.png")+"\n\n"+filepath.Join(dir, "b.png")+"\n"), 0o644))

	fs, err := NewFileStack(listPath)
	require.NoError(t, err)
	require.Equal(t, 2, fs.NumSlices())
}

func TestFileStackDetermineSizeAndPadding(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "0.png"), 3, 2, 128)
	listPath := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(listPath, []byte(filepath.Join(dir, "0.png")+"\n"), 0o644))

	fs, err := NewFileStack(listPath)
	require.NoError(t, err)
	require.NoError(t, fs.DetermineSize(cluster.NewLocal()))

	w, h, n := fs.Dimensions()
	require.Equal(t, 3, w)
	require.Equal(t, 2, h)
	require.Equal(t, 1, n)

	// S2: target canvas is wider/taller than the source; the gray region
	// must be centred in a padded canvas.
	fs.width, fs.height = 4, 4
	im, err := fs.Image(0, 255)
	require.NoError(t, err)
	require.Equal(t, 4, im.Bounds().Dx())
	require.Equal(t, 4, im.Bounds().Dy())
	require.Equal(t, color.Gray{Y: 128}, im.GrayAt(1, 1)) // (4-3)>>1=0, (4-2)>>1=1: centred region starts at (0,1)
	require.Equal(t, color.Gray{Y: 255}, im.GrayAt(0, 0)) // corner is padding
}

func TestFileStackDetermineSizeDistributesAcrossRanks(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "0.png"), 2, 2, 0)
	writePNG(t, filepath.Join(dir, "1.png"), 5, 3, 0)
	listPath := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(listPath, []byte(
		filepath.Join(dir, "0.png")+"\n"+filepath.Join(dir, "1.png")+"\n"), 0o644))

	fs, err := NewFileStack(listPath)
	require.NoError(t, err)
	comms := cluster.NewInProcess(2)

	errs := make([]error, 2)
	done := make(chan struct{}, 2)
	for r := 0; r < 2; r++ {
		go func(r int) {
			errs[r] = fs.DetermineSize(comms[r])
			done <- struct{}{}
		}(r)
	}
	<-done
	<-done
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	w, h, _ := fs.Dimensions()
	require.Equal(t, 5, w)
	require.Equal(t, 3, h)
}

func TestSliceToBlocksReadsBorderBlock(t *testing.T) {
	dir := t.TempDir()
	// 5x5 image, 2 slices, block size 4: border block (u=1,v=0) only has
	// a single valid column (width 5 - 4 = 1).
	writePNG(t, filepath.Join(dir, "0.png"), 5, 5, 10)
	writePNG(t, filepath.Join(dir, "1.png"), 5, 5, 20)
	listPath := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(listPath, []byte(
		filepath.Join(dir, "0.png")+"\n"+filepath.Join(dir, "1.png")+"\n"), 0o644))

	fs, err := NewFileStack(listPath)
	require.NoError(t, err)
	require.NoError(t, fs.DetermineSize(cluster.NewLocal()))

	sb := NewSliceToBlocks(fs, 4)
	require.Equal(t, 4, sb.BlockSize())

	b, err := sb.GetBlock(1, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 4, b.Width) // full block allocation, not trimmed to the valid region
	require.Equal(t, uint8(10), b.At(0, 0, 0)) // valid column
	require.Equal(t, uint8(0), b.At(1, 0, 0))  // beyond stack width: zero padding
	require.Equal(t, uint8(20), b.At(0, 0, 1)) // second plane from slice 1
}
