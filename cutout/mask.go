package cutout

import (
	"fmt"
	"image"
	"math"

	"github.com/chaos-io/bgvanish/cutout/segment"
)

// Polarity 表示 mask 分数的含义，启动时由配置决定，运行时不推断
type Polarity int

const (
	// PolarityForeground 分数为前景概率，alpha = score
	PolarityForeground Polarity = iota
	// PolarityBackground 分数为背景概率，alpha = 1 - score
	PolarityBackground
)

func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "", "foreground":
		return PolarityForeground, nil
	case "background":
		return PolarityBackground, nil
	}
	return 0, fmt.Errorf("%w: unknown mask polarity %q", ErrInvalidInput, s)
}

func (p Polarity) String() string {
	if p == PolarityBackground {
		return "background"
	}
	return "foreground"
}

// Alpha 把单个分数换算成 alpha 值
func (p Polarity) Alpha(score float64) uint8 {
	if p == PolarityBackground {
		score = 1 - score
	}
	if math.IsNaN(score) || score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return uint8(math.Round(score * 255))
}

// ApplyMask 返回新的 NRGBA：RGB 拷贝自 canvas，alpha 来自 mask
// canvas 本身不会被修改
func ApplyMask(canvas *image.NRGBA, mask *segment.Mask, polarity Polarity) (*image.NRGBA, error) {
	if canvas == nil {
		return nil, fmt.Errorf("%w: nil canvas", ErrCanvasUnavailable)
	}
	if mask == nil {
		return nil, ErrMaskMissing
	}

	b := canvas.Bounds()
	w, h := b.Dx(), b.Dy()
	if len(mask.Scores) != w*h {
		return nil, fmt.Errorf("%w: got %d scores for %dx%d pixels", ErrMaskLength, len(mask.Scores), w, h)
	}
	if mask.Width > 0 && mask.Height > 0 && (mask.Width != w || mask.Height != h) {
		return nil, fmt.Errorf("%w: mask is %dx%d, canvas is %dx%d", ErrMaskLength, mask.Width, mask.Height, w, h)
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := canvas.Pix[canvas.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			o := x * 4
			dst[o] = src[o]
			dst[o+1] = src[o+1]
			dst[o+2] = src[o+2]
			dst[o+3] = polarity.Alpha(mask.Scores[y*w+x])
		}
	}
	return out, nil
}
