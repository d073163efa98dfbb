package images

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Codec provides the pixel operations the manager needs. Implementations
// must be safe for concurrent use; they run on the worker pool.
type Codec interface {
	Resize(img image.Image, width, height int) image.Image
	Encode(img image.Image, quality int) ([]byte, error)
	Decode(data []byte) (image.Image, error)
}

// JPEGCodec scales with bilinear interpolation and encodes baseline JPEG.
type JPEGCodec struct{}

func (JPEGCodec) Resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func (JPEGCodec) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (JPEGCodec) Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return img, nil
}
