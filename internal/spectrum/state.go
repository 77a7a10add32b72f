package spectrum

// State 是一次播放会话的频谱状态。Bands 和 Peaks 的长度在创建后固定为 BandCount。
type State struct {
	Bands   []float64
	Peaks   []float64
	history [][]float64
	depth   int
}

// NewState 创建全零状态。
func NewState(cfg Config) *State {
	return &State{
		Bands:   make([]float64, cfg.BandCount),
		Peaks:   make([]float64, cfg.BandCount),
		history: make([][]float64, 0, cfg.HistoryDepth),
		depth:   cfg.HistoryDepth,
	}
}

// Reset 清零频带、峰值和历史。
func (s *State) Reset() {
	clear(s.Bands)
	clear(s.Peaks)
	s.history = s.history[:0]
}

// Snapshot 返回当前频带值的副本。
func (s *State) Snapshot() []float64 {
	out := make([]float64, len(s.Bands))
	copy(out, s.Bands)
	return out
}

// HistoryLen 返回历史帧数量，不超过 HistoryDepth。
func (s *State) HistoryLen() int { return len(s.history) }

// push 追加一帧到历史，超出深度时淘汰最旧的一帧。
func (s *State) push(frame []float64) {
	if s.depth <= 0 {
		return
	}
	if len(s.history) == s.depth {
		oldest := s.history[0]
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
		// 复用被淘汰帧的内存
		copy(oldest, frame)
		s.history = append(s.history, oldest)
		return
	}
	f := make([]float64, len(frame))
	copy(f, frame)
	s.history = append(s.history, f)
}
