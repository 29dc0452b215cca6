package http

import (
	"context"
	"net/http"
	"time"
)

type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 描述一次 HTTP 调用
//
//	Body 支持 nil、io.Reader、[]byte，其余类型按 JSON 序列化
//	Response 为 *[]byte 时保存原始响应体，否则按 JSON 反序列化
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
	// MaxBytes 限制响应体大小，0 表示不限制
	MaxBytes int64

	// ResponseHeader 请求完成后填充
	ResponseHeader http.Header
}
