package handler

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/bgvanish/config"
	"github.com/chaos-io/bgvanish/cutout"
	"github.com/chaos-io/bgvanish/model"
	"github.com/chaos-io/bgvanish/session"
	"github.com/chaos-io/bgvanish/util"
)

// multipart 表单除文件外的余量
const formOverhead = 1 << 20

var errTooLarge = fmt.Errorf("%w: file too large", cutout.ErrInvalidInput)

type Handler struct {
	cfg      *config.Config
	remover  *cutout.Remover
	loader   *cutout.Loader
	sessions *session.Manager
}

func NewHandler(cfg *config.Config, remover *cutout.Remover, loader *cutout.Loader, sessions *session.Manager) *Handler {
	return &Handler{
		cfg:      cfg,
		remover:  remover,
		loader:   loader,
		sessions: sessions,
	}
}

// Register 注册 API 路由
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api/v1")
	{
		api.POST("/remove", h.Remove)

		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.POST("/sessions/:id/image", h.SubmitImage)
		api.GET("/sessions/:id/result", h.GetResult)
		api.DELETE("/sessions/:id/result", h.ResetSession)
	}
}

// Remove 一次性去背景，直接返回 PNG
func (h *Handler) Remove(c *gin.Context) {
	img, err := h.loadSource(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	res, err := h.remover.Remove(c.Request.Context(), img, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}

	writePNG(c, res)
}

func (h *Handler) CreateSession(c *gin.Context) {
	s := h.sessions.Create()
	snap := s.Snapshot()
	c.JSON(http.StatusCreated, model.SessionResponse{Success: true, Data: &snap})
}

func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	snap := s.Snapshot()
	c.JSON(http.StatusOK, model.SessionResponse{Success: true, Data: &snap})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Success: false,
			Message: "图片处理中，无法删除会话",
			Error:   err.Error(),
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitImage 在会话中处理一张图片，处理期间拒绝新的提交
func (h *Handler) SubmitImage(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := s.Begin(); err != nil {
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Success: false,
			Message: "会话正忙或已有结果，请先重置",
			Error:   err.Error(),
		})
		return
	}

	res, err := h.process(c, s)
	if err != nil {
		_ = s.Fail()
		h.respondError(c, err)
		return
	}

	if err := s.Complete(res); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ProcessResponse{
		Success: true,
		Message: session.SuccessNotice,
		Data: &model.RemovalResult{
			SessionID: s.ID(),
			Width:     res.Width,
			Height:    res.Height,
			Resized:   res.Resized,
			Label:     res.Label,
			Score:     res.Score,
			Bytes:     len(res.PNG),
			ResultURL: "/api/v1/sessions/" + s.ID() + "/result",
		},
	})
}

func (h *Handler) process(c *gin.Context, s *session.Session) (*cutout.Result, error) {
	img, err := h.loadSource(c)
	if err != nil {
		return nil, err
	}
	return h.remover.Remove(c.Request.Context(), img, s.Progress)
}

func (h *Handler) GetResult(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	res, err := s.Result()
	if err != nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "暂无处理结果",
			Error:   err.Error(),
		})
		return
	}
	writePNG(c, res)
}

// ResetSession 释放结果，回到上传状态
func (h *Handler) ResetSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := s.Reset(); err != nil {
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Success: false,
			Message: "图片处理中，无法重置",
			Error:   err.Error(),
		})
		return
	}
	snap := s.Snapshot()
	c.JSON(http.StatusOK, model.SessionResponse{Success: true, Data: &snap})
}

func (h *Handler) lookup(c *gin.Context) (*session.Session, bool) {
	s, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "会话不存在或已过期",
		})
		return nil, false
	}
	return s, true
}

// loadSource 支持三种输入：JSON {"url": ...}、表单 url 字段、表单 image 文件
func (h *Handler) loadSource(c *gin.Context) (image.Image, error) {
	ctx := c.Request.Context()
	maxSize := h.cfg.Upload.MaxSize
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+formOverhead)

	if c.ContentType() == gin.MIMEJSON {
		var req model.URLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if isMaxBytes(err) {
				return nil, errTooLarge
			}
			return nil, fmt.Errorf("%w: %v", cutout.ErrInvalidInput, err)
		}
		return h.loader.LoadURL(ctx, req.URL)
	}

	if raw := c.PostForm("url"); raw != "" {
		return h.loader.LoadURL(ctx, raw)
	}

	file, err := c.FormFile("image")
	if err != nil {
		if isMaxBytes(err) {
			return nil, errTooLarge
		}
		return nil, fmt.Errorf("%w: image file or url is required", cutout.ErrInvalidInput)
	}
	if file.Size > maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", errTooLarge, file.Size, maxSize)
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	util.Logger.Debug("image uploaded",
		zap.String("filename", file.Filename),
		zap.Int64("size", file.Size))
	return cutout.LoadBytes(data)
}

func isMaxBytes(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, cutout.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, cutout.ErrInvalidInput):
		return http.StatusBadRequest
	case cutout.IsSegmentationError(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	util.Logger.Error("failed to process image",
		zap.String("request_id", c.GetString("request_id")),
		zap.Int("status", status),
		zap.Error(err))

	c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: session.FailureNotice,
		Error:   err.Error(),
	})
}

func writePNG(c *gin.Context, res *cutout.Result) {
	c.Header("X-Width", strconv.Itoa(res.Width))
	c.Header("X-Height", strconv.Itoa(res.Height))
	c.Header("X-Resized", strconv.FormatBool(res.Resized))
	c.Data(http.StatusOK, "image/png", res.PNG)
}
