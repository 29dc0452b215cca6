package session

import (
	"errors"
	"sync"
	"time"

	"github.com/chaos-io/bgvanish/cutout"
)

// State 界面状态：idle -> processing -> result，reset 回到 idle
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateResult
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateResult:
		return "result"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	initialStatus     = "Initializing..."
	preparingStatus   = "Preparing image..."
	preparingProgress = 0.05

	// FailureNotice 失败时统一展示的提示，不暴露内部错误
	FailureNotice = "Failed to process image. Please try another one."
	SuccessNotice = "Background removed successfully!"
)

var (
	ErrBusy          = errors.New("session is processing an image")
	ErrHasResult     = errors.New("session holds a result, reset it first")
	ErrNotProcessing = errors.New("session is not processing")
	ErrNoResult      = errors.New("session has no result")
)

// Snapshot 某一时刻的只读视图
type Snapshot struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Notice     string    `json:"notice,omitempty"`
	LastActive time.Time `json:"last_active"`
}

// Session 单个用户的视图模型，状态转换全部由调用方驱动
type Session struct {
	mu sync.Mutex

	id       string
	state    State
	status   string
	progress float64
	notice   string
	result   *cutout.Result
	touched  time.Time
	now      func() time.Time
}

func New(id string) *Session {
	return newSession(id, time.Now)
}

func newSession(id string, now func() time.Time) *Session {
	return &Session{
		id:      id,
		state:   StateIdle,
		status:  initialStatus,
		touched: now(),
		now:     now,
	}
}

func (s *Session) ID() string { return s.id }

// Begin idle -> processing
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateProcessing:
		return ErrBusy
	case StateResult:
		return ErrHasResult
	}

	s.state = StateProcessing
	s.status = preparingStatus
	s.progress = preparingProgress
	s.notice = ""
	s.touched = s.now()
	return nil
}

// Progress 处理中更新状态文案和进度，进度不回退
func (s *Session) Progress(stage cutout.Stage, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateProcessing {
		return
	}
	s.status = stage.Status()
	if value > s.progress {
		s.progress = value
	}
	s.touched = s.now()
}

// Complete processing -> result
func (s *Session) Complete(res *cutout.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateProcessing {
		return ErrNotProcessing
	}
	if res == nil {
		return ErrNoResult
	}

	s.state = StateResult
	s.result = res
	s.status = cutout.StageDone.Status()
	s.progress = 1
	s.notice = SuccessNotice
	s.touched = s.now()
	return nil
}

// Fail processing -> idle，只保留通用提示
func (s *Session) Fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateProcessing {
		return ErrNotProcessing
	}

	s.reset()
	s.notice = FailureNotice
	return nil
}

// Reset 释放结果并回到 idle，处理中不可重置
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateProcessing {
		return ErrBusy
	}
	s.reset()
	return nil
}

func (s *Session) reset() {
	s.state = StateIdle
	s.result = nil
	s.status = initialStatus
	s.progress = 0
	s.notice = ""
	s.touched = s.now()
}

func (s *Session) Result() (*cutout.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateResult || s.result == nil {
		return nil, ErrNoResult
	}
	return s.result, nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:         s.id,
		State:      s.state,
		Status:     s.status,
		Progress:   s.progress,
		Notice:     s.notice,
		LastActive: s.touched,
	}
}

// idleSince 处理中的会话永远不算空闲
func (s *Session) idleSince(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateProcessing {
		return 0, false
	}
	return now.Sub(s.touched), true
}
