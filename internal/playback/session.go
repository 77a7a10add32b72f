package playback

import (
	"math"
	"time"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/spectrum"
)

const (
	idleStep      = 0.016
	idleSpeed     = 1.5
	idlePhase     = 0.1
	idleAmplitude = 0.04
)

// Session 是一次播放会话：波形、时钟和频谱状态同生同灭。
type Session struct {
	waveform *audio.Waveform
	sampler  Sampler
	state    *spectrum.State
	idleT    float64
}

func newSession(wf *audio.Waveform, now time.Time, cfg spectrum.Config) *Session {
	return &Session{
		waveform: wf,
		sampler:  NewSampler(NewClock(now)),
		state:    spectrum.NewState(cfg),
	}
}

// Waveform 返回会话的波形，解码失败时为 nil。
func (s *Session) Waveform() *audio.Waveform { return s.waveform }

// tick 推进一帧。没有波形时输出低幅度的闲置波纹。
func (s *Session) tick(a *spectrum.Analyzer, now time.Time) {
	s.idleT += idleStep
	if s.waveform == nil || s.waveform.Len() == 0 {
		for i := range s.state.Bands {
			s.state.Bands[i] = math.Abs(math.Sin(s.idleT*idleSpeed+float64(i)*idlePhase)) * idleAmplitude
		}
		return
	}

	chunk := s.sampler.Chunk(s.waveform, now)
	if chunk.EndOfStream {
		a.Decay(s.state)
		return
	}
	a.Analyze(chunk.Samples, s.state)
}
