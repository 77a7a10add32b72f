package playback

import (
	"time"

	"github.com/iabetor/sesli/internal/audio"
)

// SamplesPerFrame 返回每帧读取的样本数。
func SamplesPerFrame(sampleRate int) int {
	return sampleRate / FrameRate
}

// Chunk 是一次 tick 取出的样本窗口。
type Chunk struct {
	Offset      int
	Samples     []float32
	EndOfStream bool
}

// Sampler 从波形中按时钟位置截取分析块。
type Sampler struct {
	clock Clock
}

// NewSampler 创建基于 clock 的采样器。
func NewSampler(clock Clock) Sampler {
	return Sampler{clock: clock}
}

// Chunk 返回 now 时刻的样本块。偏移超出波形长度时 EndOfStream 为 true，
// 临近末尾时块可能短于 SamplesPerFrame。
func (s Sampler) Chunk(wf *audio.Waveform, now time.Time) Chunk {
	rate := wf.SampleRate()
	offset := s.clock.SampleOffset(now, rate)
	if offset >= wf.Len() {
		return Chunk{Offset: offset, EndOfStream: true}
	}
	return Chunk{
		Offset:  offset,
		Samples: wf.Window(offset, SamplesPerFrame(rate)),
	}
}
