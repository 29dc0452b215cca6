package session

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// Manager 管理所有会话，定时清理长时间不活跃的会话及其结果
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	cron     *cron.Cron
	logger   *zap.Logger
}

func NewManager(ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		cron:     cron.New(),
		logger:   logger.Named("session"),
	}
}

func (m *Manager) Create() *Session {
	s := newSession(ksuid.New().String(), m.now)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Debug("session created", zap.String("session_id", s.ID()))
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	return s, ok
}

// Delete 处理中的会话不能删除
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if err := s.Reset(); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep 删除空闲超过 ttl 的会话，返回删除数量
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		idle, ok := s.idleSince(now)
		if !ok || idle <= m.ttl {
			continue
		}
		delete(m.sessions, id)
		removed++
	}

	if removed > 0 {
		m.logger.Info("expired sessions removed",
			zap.Int("removed", removed),
			zap.Int("remaining", len(m.sessions)))
	}
	return removed
}

// Start 按 cron 表达式定时清理
func (m *Manager) Start(spec string) error {
	if _, err := m.cron.AddFunc(spec, func() { m.Sweep() }); err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("session sweeper started", zap.String("spec", spec), zap.Duration("ttl", m.ttl))
	return nil
}

// Stop 停止定时任务，返回的 context 在正在执行的任务结束后关闭
func (m *Manager) Stop() context.Context {
	return m.cron.Stop()
}
