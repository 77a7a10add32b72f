package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed 流水线已关闭。
	ErrClosed = errors.New("语音流水线已关闭")
	// ErrEmptyText 清理后文本为空。
	ErrEmptyText = errors.New("文本为空")
	// ErrEmptyAudio 合成结果为空。
	ErrEmptyAudio = errors.New("合成结果为空")
	// ErrArtifactMissing 播放时音频文件不存在。
	ErrArtifactMissing = errors.New("音频文件不存在")
)

// SynthesisError 合成失败：后端不可用或输出为空。该段文本被丢弃，不会重试。
type SynthesisError struct {
	Request Request
	Engine  string
	Err     error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("合成失败 [%s] %q: %v", e.Engine, truncate(e.Request.Text, 32), e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// PlaybackError 播放失败：文件缺失、解码失败或设备报错。队列按播放完成处理继续推进。
type PlaybackError struct {
	Request Request
	Path    string
	Err     error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("播放失败 %s: %v", e.Path, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
