package cutout

import (
	"errors"
	"fmt"
)

// 流水线错误类型，调用方用 errors.Is 判断
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrUnsupportedMedia        = fmt.Errorf("%w: unsupported media type", ErrInvalidInput)
	ErrCanvasUnavailable       = errors.New("canvas unavailable")
	ErrSegmentationUnavailable = errors.New("segmentation unavailable")
	ErrMaskMissing             = errors.New("mask missing")
	ErrMaskLength              = fmt.Errorf("%w: mask length does not match pixel count", ErrMaskMissing)
	ErrEncodingFailed          = errors.New("encoding failed")
)
