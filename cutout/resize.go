package cutout

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// DefaultMaxDimension 工作画布默认最长边
const DefaultMaxDimension = 1024

// FitWithin 计算缩放后的尺寸（最长边 <= maxSize，保持宽高比，不放大）
func FitWithin(w, h, maxSize int) (int, int, bool) {
	if max(w, h) <= maxSize {
		return w, h, false
	}

	if w > h {
		newH := int(math.Round(float64(h) * float64(maxSize) / float64(w)))
		return maxSize, max(1, newH), true
	}
	newW := int(math.Round(float64(w) * float64(maxSize) / float64(h)))
	return max(1, newW), maxSize, true
}

// ResizeToBound 把图片画到有界尺寸的工作画布上
// 返回的画布原点为 (0,0)，总是新分配的缓冲区
func ResizeToBound(img image.Image, maxSize int) (*image.NRGBA, bool, error) {
	if maxSize <= 0 {
		return nil, false, fmt.Errorf("%w: max dimension must be positive, got %d", ErrInvalidInput, maxSize)
	}
	if img == nil {
		return nil, false, fmt.Errorf("%w: nil image", ErrCanvasUnavailable)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, false, fmt.Errorf("%w: empty image %dx%d", ErrCanvasUnavailable, b.Dx(), b.Dy())
	}

	newW, newH, resized := FitWithin(b.Dx(), b.Dy(), maxSize)
	if !resized {
		return toNRGBA(img), false, nil
	}

	scaled := resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	return toNRGBA(scaled), true, nil
}

// toNRGBA 复制到原点为 (0,0) 的 NRGBA，RGB 不做预乘
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
