package segment

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/url"
	"strconv"
	"time"

	"github.com/chaos-io/bgvanish/util"
	nhttp "github.com/chaos-io/bgvanish/util/http"
	"go.uber.org/zap"
)

const (
	DefaultModel = "Xenova/segformer-b0-finetuned-ade-512-512"

	segmentPath = "api/segment"
	loadPath    = "api/models/load"

	// 送去推理前按 JPEG 90 编码
	uploadQuality = 90
)

// Options 外部推理服务参数
// AllowLocalModels / UseCache 是推理库的全局开关，这里随请求显式下发
type Options struct {
	Endpoint         string
	Model            string
	Timeout          time.Duration
	AllowLocalModels bool
	UseCache         bool
	// Logger 为空时使用 util.Logger
	Logger *zap.Logger
}

// HTTPSegmenter 通过 HTTP 调用外部图像分割服务
type HTTPSegmenter struct {
	opts   Options
	cli    nhttp.IClient
	logger *zap.Logger
}

func NewHTTPSegmenter(opts Options, cli nhttp.IClient) *HTTPSegmenter {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	logger := opts.Logger
	if logger == nil {
		logger = util.Logger
	}
	return &HTTPSegmenter{opts: opts, cli: cli, logger: logger.Named("segmenter")}
}

type loadReq struct {
	Model            string `json:"model"`
	AllowLocalModels bool   `json:"allow_local_models"`
	UseCache         bool   `json:"use_cache"`
}

/*
	curl -X POST "$BASE_URL/api/models/load" \
	  -H "Content-Type: application/json" \
	  -d '{"model": "Xenova/segformer-b0-finetuned-ade-512-512", "allow_local_models": false, "use_cache": true}'
*/
func (h *HTTPSegmenter) Prepare(ctx context.Context) error {
	uri, err := url.JoinPath(h.opts.Endpoint, loadPath)
	if err != nil {
		return fmt.Errorf("join url: %w", err)
	}

	reqParam := &nhttp.RequestParam{
		RequestURI: uri,
		Method:     "POST",
		Body: &loadReq{
			Model:            h.opts.Model,
			AllowLocalModels: h.opts.AllowLocalModels,
			UseCache:         h.opts.UseCache,
		},
		Timeout: h.opts.Timeout,
	}
	if err := h.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return fmt.Errorf("load model %s: %w", h.opts.Model, err)
	}
	return nil
}

type segmentResp struct {
	Segments []segmentDTO `json:"segments"`
}

type segmentDTO struct {
	Label string   `json:"label"`
	Score float64  `json:"score"`
	Mask  *maskDTO `json:"mask"`
}

// maskDTO data 为逐像素分数，png 为 base64 编码的灰度图，二选一
type maskDTO struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Data   []float64 `json:"data,omitempty"`
	PNG    string    `json:"png,omitempty"`
}

/*
	curl -X POST "$BASE_URL/api/segment" \
	  -F "image=@canvas.jpg" \
	  -F "model=Xenova/segformer-b0-finetuned-ade-512-512" \
	  -F "allow_local_models=false" \
	  -F "use_cache=true"

{"segments": [{"label": "wall", "score": 0.98, "mask": {"width": 2, "height": 1, "data": [0.1, 0.9]}}]}
*/
func (h *HTTPSegmenter) Segment(ctx context.Context, img image.Image) ([]Segment, error) {
	uri, err := url.JoinPath(h.opts.Endpoint, segmentPath)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "canvas.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: uploadQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	_ = writer.WriteField("model", h.opts.Model)
	_ = writer.WriteField("allow_local_models", strconv.FormatBool(h.opts.AllowLocalModels))
	_ = writer.WriteField("use_cache", strconv.FormatBool(h.opts.UseCache))
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	resp := &segmentResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: uri,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
		Timeout:    h.opts.Timeout,
	}
	if err := h.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	h.logger.Debug("get the segment response", zap.String("model", h.opts.Model), zap.Int("segments", len(resp.Segments)))

	segments := make([]Segment, 0, len(resp.Segments))
	for i, s := range resp.Segments {
		mask, err := s.Mask.toMask()
		if err != nil {
			return nil, fmt.Errorf("decode mask %d (%s): %w", i, s.Label, err)
		}
		segments = append(segments, Segment{Label: s.Label, Score: s.Score, Mask: mask})
	}
	return segments, nil
}

func (m *maskDTO) toMask() (*Mask, error) {
	if m == nil {
		return nil, nil
	}
	if len(m.Data) > 0 {
		return &Mask{Width: m.Width, Height: m.Height, Scores: m.Data}, nil
	}
	if m.PNG == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(m.PNG)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return MaskFromImage(img), nil
}
