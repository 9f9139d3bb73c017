package codec

import (
	"bytes"
	"image"
	"image/png"
)

// pngCodec encodes/decodes tiles as PNG.
type pngCodec struct{}

func (c *pngCodec) Encode(r *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *pngCodec) Decode(data []byte) (*image.Gray, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return toGray(img), nil
}

func (c *pngCodec) Format() Format { return PNG }
