package cutout

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/chaos-io/bgvanish/cutout/segment"
	"github.com/chaos-io/bgvanish/util"
)

// Result 一次去背景的产物
type Result struct {
	PNG     []byte
	Width   int
	Height  int
	Resized bool
	Label   string
	Score   float64
}

type Option func(*Remover)

func WithMaxDimension(n int) Option {
	return func(r *Remover) { r.maxDimension = n }
}

func WithPolarity(p Polarity) Option {
	return func(r *Remover) { r.polarity = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Remover) { r.logger = l }
}

// Remover 去背景流水线
//
//	缩放到最长边 <= maxDimension
//	调用外部分割，取第一个结果的 mask
//	mask 写入 alpha 通道
//	编码为 PNG
//
// 不做互斥，同一时间只处理一张图由调用方保证
type Remover struct {
	segmenter    segment.Segmenter
	maxDimension int
	polarity     Polarity
	logger       *zap.Logger
}

func NewRemover(segmenter segment.Segmenter, opts ...Option) *Remover {
	r := &Remover{
		segmenter:    segmenter,
		maxDimension: DefaultMaxDimension,
		polarity:     PolarityForeground,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = util.Logger
	}
	r.logger = r.logger.Named("remover")
	return r
}

func (r *Remover) Polarity() Polarity { return r.polarity }

func (r *Remover) MaxDimension() int { return r.maxDimension }

// Remove 任一步失败立即返回，之后不再回调进度，也不返回部分结果
func (r *Remover) Remove(ctx context.Context, img image.Image, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	report := func(s Stage) {
		r.logger.Debug("stage", zap.String("stage", string(s)), zap.Float64("progress", s.Progress()))
		if onProgress != nil {
			onProgress(s, s.Progress())
		}
	}

	res, err := r.remove(ctx, img, report)
	if err != nil {
		r.logger.Error("failed to remove background", zap.Error(err), zap.Duration("cost", time.Since(start)))
		return nil, err
	}

	r.logger.Info("background removed",
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
		zap.Bool("resized", res.Resized),
		zap.String("label", res.Label),
		zap.Int("bytes", len(res.PNG)),
		zap.Duration("cost", time.Since(start)))
	return res, nil
}

func (r *Remover) remove(ctx context.Context, img image.Image, report func(Stage)) (*Result, error) {
	if r.segmenter == nil {
		return nil, fmt.Errorf("%w: no segmenter configured", ErrSegmentationUnavailable)
	}

	// 1. 初始化模型
	report(StageInitializing)
	if p, ok := r.segmenter.(segment.Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSegmentationUnavailable, err)
		}
	}

	// 2. 缩放到工作画布
	report(StageResizing)
	canvas, resized, err := ResizeToBound(img, r.maxDimension)
	if err != nil {
		return nil, err
	}

	// 3. 外部分割
	report(StageSegmenting)
	segments, err := r.segmenter.Segment(ctx, canvas)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSegmentationUnavailable, err)
	}
	selected, err := segment.First(segments)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSegmentationUnavailable, err)
	}
	if selected.Mask == nil {
		return nil, fmt.Errorf("%w: segment %q has no mask", ErrMaskMissing, selected.Label)
	}

	// 4. 合成 alpha
	report(StageCompositing)
	output, err := ApplyMask(canvas, selected.Mask, r.polarity)
	if err != nil {
		return nil, err
	}

	// 5. 编码
	data, err := EncodePNG(output)
	if err != nil {
		return nil, err
	}

	report(StageDone)
	return &Result{
		PNG:     data,
		Width:   output.Bounds().Dx(),
		Height:  output.Bounds().Dy(),
		Resized: resized,
		Label:   selected.Label,
		Score:   selected.Score,
	}, nil
}

// IsSegmentationError 外部分割相关的错误
func IsSegmentationError(err error) bool {
	return errors.Is(err, ErrSegmentationUnavailable) || errors.Is(err, ErrMaskMissing)
}
