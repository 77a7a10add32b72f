package speech

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/logger"
)

// Request 是一段等待合成的文本。
type Request struct {
	ID         string
	Text       string
	Epoch      uint64 // 入队时的 stop 代数，用于丢弃过期结果
	EnqueuedAt time.Time
}

// Artifact 是合成产生的临时音频文件，归流水线独占，在播放完成或取消时删除一次。
type Artifact struct {
	Request Request
	Path    string
	Engine  string
	// Waveform 是已解码的音频，为 nil 时在开始播放前从 Path 解码。
	Waveform *audio.Waveform

	once     sync.Once
	released bool
	mu       sync.Mutex
}

// Duration 返回音频时长，尚未解码时为 0。
func (a *Artifact) Duration() time.Duration {
	if a.Waveform == nil {
		return 0
	}
	return a.Waveform.Duration()
}

// Release 删除后备文件。重复调用是安全的，文件已不存在时静默返回。
func (a *Artifact) Release() {
	a.once.Do(func() {
		a.mu.Lock()
		a.released = true
		a.mu.Unlock()
		if a.Path == "" {
			return
		}
		if _, err := os.Stat(a.Path); errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err := os.Remove(a.Path); err != nil {
			logger.Warnf("[speech] 删除临时音频 %s 失败: %v", a.Path, err)
			return
		}
		logger.Debugf("[speech] 已删除临时音频 %s", a.Path)
	})
}

// Released 返回 Release 是否已被调用。
func (a *Artifact) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}
