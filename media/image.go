package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ErrBadImage signals that cached bytes could not be decoded. The cache
// entry should be evicted so the next pass refetches it.
var ErrBadImage = errors.New("media: undecodable image")

// Decode parses raw attachment bytes into an image. Format detection is
// sniff-based so the attachment name's extension does not matter.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return img, nil
}

// Letterbox scales src to fit inside a width x height canvas while
// preserving aspect ratio, centering it over black bars. The source is
// never cropped or stretched.
func Letterbox(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return dst
	}

	scale := float64(width) / float64(sb.Dx())
	if s := float64(height) / float64(sb.Dy()); s < scale {
		scale = s
	}
	w := int(float64(sb.Dx()) * scale)
	h := int(float64(sb.Dy()) * scale)
	x := (width - w) / 2
	y := (height - h) / 2

	target := image.Rect(x, y, x+w, y+h)
	draw.CatmullRom.Scale(dst, target, src, sb, draw.Src, nil)
	return dst
}
