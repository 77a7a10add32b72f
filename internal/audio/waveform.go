package audio

import (
	"errors"
	"time"
)

// Waveform 是解码后的单声道音频缓冲区。创建后不再修改，
// 新的音频总是整体替换旧的 Waveform，而不是原地改写。
type Waveform struct {
	samples    []float32
	sampleRate int
}

// NewWaveform 接管 samples 的所有权创建 Waveform，调用方之后不应再修改该切片。
func NewWaveform(samples []float32, sampleRate int) (*Waveform, error) {
	if sampleRate <= 0 {
		return nil, errors.New("采样率必须为正数")
	}
	return &Waveform{samples: samples, sampleRate: sampleRate}, nil
}

// SampleRate 返回采样率（Hz）。
func (w *Waveform) SampleRate() int { return w.sampleRate }

// Len 返回样本数。
func (w *Waveform) Len() int { return len(w.samples) }

// Duration 返回音频总时长。
func (w *Waveform) Duration() time.Duration {
	return time.Duration(float64(len(w.samples)) / float64(w.sampleRate) * float64(time.Second))
}

// Samples 返回全部样本的副本。
func (w *Waveform) Samples() []float32 {
	out := make([]float32, len(w.samples))
	copy(out, w.samples)
	return out
}

// Window 返回从 offset 开始最多 n 个样本的只读视图。
// 到达缓冲区末尾时返回较短的切片，越界则返回空切片。
func (w *Waveform) Window(offset, n int) []float32 {
	if offset < 0 || n <= 0 || offset >= len(w.samples) {
		return nil
	}
	end := offset + n
	if end > len(w.samples) {
		end = len(w.samples)
	}
	// 限制容量，防止调用方 append 覆盖后续样本
	return w.samples[offset:end:end]
}
