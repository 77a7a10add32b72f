package playback

import (
	"context"
	"sync"
	"time"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/logger"
	"github.com/iabetor/sesli/internal/spectrum"
)

// DefaultTickInterval 默认 tick 间隔（约 60 Hz）。
const DefaultTickInterval = 16 * time.Millisecond

// Monitor 持有当前唯一的播放会话，向渲染端提供频带值。
// 新会话整体替换旧会话，不会合并状态。
type Monitor struct {
	mu       sync.Mutex
	cfg      spectrum.Config
	analyzer *spectrum.Analyzer
	session  *Session
}

// NewMonitor 创建监视器。
func NewMonitor(cfg spectrum.Config) *Monitor {
	return &Monitor{
		cfg:      cfg,
		analyzer: spectrum.NewAnalyzer(cfg),
	}
}

// Begin 以 now 为时钟起点开始新会话。wf 为 nil 时进入闲置波纹模式。
func (m *Monitor) Begin(wf *audio.Waveform, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf == nil {
		logger.Debug("[playback] 没有波形数据，使用闲置波纹")
	}
	m.session = newSession(wf, now, m.cfg)
}

// End 结束并销毁当前会话。
func (m *Monitor) End() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}

// Tick 推进一帧。没有会话时什么也不做。
func (m *Monitor) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return
	}
	m.session.tick(m.analyzer, now)
}

// CurrentBands 返回当前频带值的副本，长度恒为 BandCount。没有会话时全为 0。
func (m *Monitor) CurrentBands() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return make([]float64, m.cfg.BandCount)
	}
	return m.session.state.Snapshot()
}

// IsActive 返回是否有活动会话。
func (m *Monitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Config 返回当前分析参数。
func (m *Monitor) Config() spectrum.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// SetConfig 更换分析参数。当前会话的状态按新的频带数重建，时钟不变。
func (m *Monitor) SetConfig(cfg spectrum.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.analyzer = spectrum.NewAnalyzer(cfg)
	if m.session != nil {
		m.session.state = spectrum.NewState(cfg)
	}
	logger.Infof("[playback] 分析参数已更新: bands=%d history=%d", cfg.BandCount, cfg.HistoryDepth)
}

// Run 以 interval 为间隔调用 Tick，直到 ctx 取消。
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}
