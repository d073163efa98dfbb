package images

import (
	"image"

	"github.com/orchestra-mcp/channel/config"
	"github.com/orchestra-mcp/channel/src/types"
)

// DimensionsOf returns the size of img.
func DimensionsOf(img image.Image) types.Dimensions {
	b := img.Bounds()
	return types.Dimensions{Width: b.Dx(), Height: b.Dy()}
}

// fitting returns the largest size with original's aspect ratio that fits
// in max.
func fitting(original, max types.Dimensions) types.Dimensions {
	widthFactor := float64(max.Width) / float64(original.Width)
	heightFactor := float64(max.Height) / float64(original.Height)
	var d types.Dimensions
	if widthFactor < heightFactor {
		d = types.Dimensions{Width: max.Width, Height: int(float64(original.Height) * widthFactor)}
	} else {
		d = types.Dimensions{Width: int(float64(original.Width) * heightFactor), Height: max.Height}
	}
	d.Width = atLeastOne(d.Width)
	d.Height = atLeastOne(d.Height)
	return d
}

// ScaleToFit shrinks img to fit in max, keeping its aspect ratio. Shrinking
// by more than 2x is done in halving passes. Images that already fit are
// returned unchanged.
func ScaleToFit(codec Codec, img image.Image, max types.Dimensions) image.Image {
	current := DimensionsOf(img)
	if current.Width <= max.Width && current.Height <= max.Height {
		return img
	}
	target := fitting(current, max)

	for current.Width > target.Width || current.Height > target.Height {
		pass := target
		if target.Width < current.Width/2 || target.Height < current.Height/2 {
			pass = types.Dimensions{
				Width:  atLeastOne(current.Width / 2),
				Height: atLeastOne(current.Height / 2),
			}
		}
		img = codec.Resize(img, pass.Width, pass.Height)
		current = DimensionsOf(img)
	}
	return img
}

// Compress encodes img at decreasing quality until the result fits in
// maxBytes. If even the floor quality is too large, that result is used.
func Compress(codec Codec, img image.Image, maxBytes int) ([]byte, error) {
	quality := config.CompressStartQuality
	for {
		data, err := codec.Encode(img, quality)
		if err != nil {
			return nil, err
		}
		quality -= config.CompressQualityStep
		if len(data) <= maxBytes || quality < config.CompressFloorQuality {
			return data, nil
		}
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
