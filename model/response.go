package model

import "github.com/chaos-io/bgvanish/session"

// RemovalResult 去背景结果的元信息，图片本身通过 ResultURL 获取
type RemovalResult struct {
	SessionID string  `json:"session_id"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Resized   bool    `json:"resized"`
	Label     string  `json:"label"`
	Score     float64 `json:"score"`
	Bytes     int     `json:"bytes"`
	ResultURL string  `json:"result_url"`
}

// ProcessResponse 提交图片的响应
type ProcessResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    *RemovalResult `json:"data,omitempty"`
}

// SessionResponse 会话状态响应
type SessionResponse struct {
	Success bool              `json:"success"`
	Data    *session.Snapshot `json:"data,omitempty"`
}

// URLRequest JSON 方式提交图片地址
type URLRequest struct {
	URL string `json:"url" binding:"required"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
