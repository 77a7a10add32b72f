package speech

import (
	"sync"

	"github.com/iabetor/sesli/internal/logger"
)

// State 表示语音输出流水线的当前状态。
type State int

const (
	// StateIdle 空闲，没有待合成或待播放的内容。
	StateIdle State = iota
	// StateSynthesizing 正在合成文本。
	StateSynthesizing
	// StateArtifactReady 音频已就绪，等待开始播放。
	StateArtifactReady
	// StatePlaying 正在播放。
	StatePlaying
	// StateError 合成或播放失败，随后自动恢复。
	StateError
	// StateCancelled 被 Stop 中断，随后回到 Idle。
	StateCancelled
)

var stateNames = [...]string{
	"Idle",
	"Synthesizing",
	"ArtifactReady",
	"Playing",
	"Error",
	"Cancelled",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateMachine 管理线程安全的状态转换。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateIdle}
}

// SetOnChange 注册状态变化时的回调函数。回调在持有锁时执行，不应再调用状态机。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换状态。只有合法的转换才会生效：
//
//	Idle          → Synthesizing
//	Synthesizing  → ArtifactReady | Error
//	ArtifactReady → Playing | Synthesizing
//	Playing       → Synthesizing | ArtifactReady | Error
//	Error         → Synthesizing | ArtifactReady | Playing
//	非 Idle 状态   → Cancelled
//
// 任何状态都可以转换到 Idle。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Debugf("[state] 非法转换 %s → %s", sm.current, to)
		return false
	}

	from := sm.current
	sm.current = to
	logger.Debugf("[state] %s → %s", from, to)

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// ForceIdle 无条件重置状态为 Idle。
func (sm *StateMachine) ForceIdle() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	sm.current = StateIdle
	if from != StateIdle {
		logger.Debugf("[state] 强制重置 %s → Idle", from)
		if sm.onChange != nil {
			sm.onChange(from, StateIdle)
		}
	}
}

// validTransition 检查状态转换是否合法。
func validTransition(from, to State) bool {
	if to == StateIdle {
		return true
	}
	if to == StateCancelled {
		return from != StateIdle && from != StateCancelled
	}
	switch from {
	case StateIdle:
		return to == StateSynthesizing
	case StateSynthesizing:
		return to == StateArtifactReady || to == StateError
	case StateArtifactReady:
		// 停止后旧的播放仍在收尾时，新请求的合成失败会从 ArtifactReady 进入 Error
		return to == StatePlaying || to == StateSynthesizing || to == StateError
	case StatePlaying:
		return to == StateSynthesizing || to == StateArtifactReady || to == StateError
	case StateError:
		return to == StateSynthesizing || to == StateArtifactReady || to == StatePlaying
	}
	return false
}
