package codec

import (
	"bytes"
	"image"

	"golang.org/x/image/tiff"
)

// tiffCodec encodes/decodes tiles as uncompressed TIFF.
//
// golang.org/x/image/tiff is the Go ecosystem's standard TIFF codec (see
// DESIGN.md / SPEC_FULL.md §6 for grounding); the teacher repo itself never
// needed TIFF, so this is the one codec with no direct teacher-file source.
type tiffCodec struct{}

func (c *tiffCodec) Encode(r *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, r, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *tiffCodec) Decode(data []byte) (*image.Gray, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return toGray(img), nil
}

func (c *tiffCodec) Format() Format { return TIFF }
