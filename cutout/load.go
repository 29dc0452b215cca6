package cutout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	nhttp "github.com/chaos-io/bgvanish/util/http"
)

// DefaultMaxBytes 远程图片默认大小上限
const DefaultMaxBytes = 10 << 20

// LoadBytes 校验媒体类型后解码图片
func LoadBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mt.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnsupportedMedia, mt.String(), err)
	}
	return img, nil
}

// LoadFile 打开本地图片
func LoadFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image file: %w", err)
	}
	return LoadBytes(data)
}

// Loader 下载远程图片
type Loader struct {
	cli      nhttp.IClient
	maxBytes int64
	timeout  time.Duration
}

func NewLoader(cli nhttp.IClient, maxBytes int64, timeout time.Duration) *Loader {
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Loader{cli: cli, maxBytes: maxBytes, timeout: timeout}
}

// ParseImageURL 只接受带 host 的 http/https 地址
func ParseImageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed url: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: malformed url: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: malformed url: missing host", ErrInvalidInput)
	}
	return u, nil
}

// LoadURL 下载图片并校验
func (l *Loader) LoadURL(ctx context.Context, raw string) (image.Image, error) {
	u, err := ParseImageURL(raw)
	if err != nil {
		return nil, err
	}

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: u.String(),
		Method:     "GET",
		Response:   &data,
		Timeout:    l.timeout,
		MaxBytes:   l.maxBytes,
	}
	if err := l.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		if errors.Is(err, nhttp.ErrBodyTooLarge) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("download image: %w", err)
	}
	return LoadBytes(data)
}
