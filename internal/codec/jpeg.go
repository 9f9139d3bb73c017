package codec

import (
	"bytes"
	"image"
	"image/jpeg"
)

// jpegCodec encodes/decodes tiles as JPEG.
type jpegCodec struct {
	Quality int // 1-100, default 90
}

func (c *jpegCodec) Encode(r *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	quality := c.Quality
	if quality <= 0 {
		quality = 90
	}
	if err := jpeg.Encode(&buf, r, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *jpegCodec) Decode(data []byte) (*image.Gray, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return toGray(img), nil
}

func (c *jpegCodec) Format() Format { return JPEG }
