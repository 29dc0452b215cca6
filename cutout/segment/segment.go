package segment

import (
	"context"
	"errors"
	"image"

	"golang.org/x/image/draw"
)

var ErrEmptyResult = errors.New("empty segmentation result")

// Mask 单通道逐像素分数，取值 [0,1]，按行优先排列
type Mask struct {
	Width  int
	Height int
	Scores []float64
}

// Segment 外部模型返回的一个分割结果
type Segment struct {
	Label string
	Score float64
	Mask  *Mask
}

// Segmenter 外部分割能力，返回的 mask 与输入图片尺寸对齐
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) ([]Segment, error)
}

// Preparer 可选的模型预热
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Func 把普通函数适配成 Segmenter
type Func func(ctx context.Context, img image.Image) ([]Segment, error)

func (f Func) Segment(ctx context.Context, img image.Image) ([]Segment, error) {
	return f(ctx, img)
}

// First 无条件取第一个结果，不按 label 或 score 过滤
func First(segments []Segment) (*Segment, error) {
	if len(segments) == 0 {
		return nil, ErrEmptyResult
	}
	return &segments[0], nil
}

// Uniform 生成所有像素同分的 mask
func Uniform(w, h int, score float64) *Mask {
	scores := make([]float64, w*h)
	for i := range scores {
		scores[i] = score
	}
	return &Mask{Width: w, Height: h, Scores: scores}
}

// MaskFromImage 把灰度图换算成 mask，灰度 255 对应 1.0
func MaskFromImage(img image.Image) *Mask {
	b := img.Bounds()
	gray, ok := img.(*image.Gray)
	if !ok || b.Min != (image.Point{}) {
		gray = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	scores := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for _, v := range row {
			scores = append(scores, float64(v)/255.0)
		}
	}
	return &Mask{Width: w, Height: h, Scores: scores}
}
