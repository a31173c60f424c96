package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp"
)

// DefaultQuality is the JPEG quality posters are re-encoded at
const DefaultQuality = 85

// Compress re-encodes data for a file with extension ext. JPEG targets are
// encoded at quality with transparency flattened onto white; PNG targets use
// best compression. Other extensions are returned unchanged. When the source
// is already in the target format and re-encoding does not shrink it, the
// original bytes are kept.
func Compress(data []byte, ext string, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	var target string
	switch ext {
	case ".jpg", ".jpeg":
		target = "jpeg"
		err = jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: quality})
	case ".png":
		target = "png"
		err = (&png.Encoder{CompressionLevel: png.BestCompression}).Encode(&buf, img)
	default:
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("encode %s: %w", target, err)
	}

	if format == target && buf.Len() >= len(data) {
		return data, nil
	}
	return buf.Bytes(), nil
}

func flatten(img image.Image) image.Image {
	if op, ok := img.(interface{ Opaque() bool }); ok && op.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
