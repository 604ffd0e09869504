package imports

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"recipe-importer/internal/core/importer"
	"recipe-importer/internal/core/workflow"
	"recipe-importer/internal/pkg/common"
)

// Session 一個進行中的匯入
// 驗證流程不可併發使用，所有操作透過 Do 串行化
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	batch      *importer.Batch
	lastAccess time.Time
}

// Do 在工作階段鎖內操作驗證流程
func (s *Session) Do(fn func(batch *importer.Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.batch)
}

// Registry 行程內的匯入工作階段，閒置超過 ttl 者定期清除
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry 創建工作階段表並啟動清理
func NewRegistry(ttl, cleanupInterval time.Duration) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	r := &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go r.cleanupLoop(cleanupInterval)
	return r
}

// Add 登記新的匯入
func (r *Registry) Add(batch *importer.Batch) *Session {
	now := r.now()
	s := &Session{
		ID:         common.GenerateUUID(),
		CreatedAt:  now,
		batch:      batch,
		lastAccess: now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get 取得工作階段並刷新存取時間
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	s.lastAccess = r.now()
	s.mu.Unlock()
	return s, true
}

// Remove 移除工作階段
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len 目前工作階段數
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close 停止清理
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Registry) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.done:
			return
		}
	}
}

// cleanup 清除閒置過久的工作階段
func (r *Registry) cleanup() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		s.mu.Lock()
		expired := now.Sub(s.lastAccess) > r.ttl
		var phase workflow.Phase
		if s.batch != nil && s.batch.Workflow != nil {
			phase = s.batch.Workflow.Phase()
		}
		s.mu.Unlock()
		if expired {
			delete(r.sessions, id)
			removed++
			common.LogDebug("清除閒置的匯入工作階段", zap.String("id", id), zap.String("phase", string(phase)))
		}
	}
	if removed > 0 {
		common.LogInfo("匯入工作階段清理完成", zap.Int("removed", removed), zap.Int("remaining", len(r.sessions)))
	}
	return removed
}
