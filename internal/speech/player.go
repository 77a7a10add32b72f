package speech

import (
	"context"
	"time"

	"github.com/iabetor/sesli/internal/audio"
)

// Player 播放一个音频产物，阻塞直到播放完成或 ctx 取消。
// 音频真正开始输出时调用一次 started，可视化时钟从此刻开始计时。
type Player interface {
	Play(ctx context.Context, art *Artifact, started func()) error
}

// PlayerFunc 把普通函数适配为 Player。
type PlayerFunc func(ctx context.Context, art *Artifact, started func()) error

func (f PlayerFunc) Play(ctx context.Context, art *Artifact, started func()) error {
	return f(ctx, art, started)
}

// Visualizer 接收播放会话的开始与结束，通常由 playback.Monitor 实现。
type Visualizer interface {
	Begin(wf *audio.Waveform, now time.Time)
	End()
}

// Decoder 在播放前把音频文件解码为波形。
type Decoder interface {
	DecodeFile(ctx context.Context, path string) (*audio.Waveform, error)
}

type waveformDevice interface {
	Play(ctx context.Context, wf *audio.Waveform, started func()) error
}

// DevicePlayer 通过 malgo 播放音频产物。
// 产物没有已解码的波形时（可视化解码失败），直接从文件读取样本，声音照常播放。
type DevicePlayer struct {
	device waveformDevice
	loader *audio.Decoder
}

// NewDevicePlayer 包装 audio.Player。
func NewDevicePlayer(p *audio.Player) *DevicePlayer {
	return newDevicePlayer(p)
}

func newDevicePlayer(d waveformDevice) *DevicePlayer {
	return &DevicePlayer{
		device: d,
		loader: audio.NewDecoderWithStrategies(audio.ManualPCM{}, audio.MP3{}),
	}
}

func (d *DevicePlayer) Play(ctx context.Context, art *Artifact, started func()) error {
	wf := art.Waveform
	if wf == nil {
		loaded, err := d.loader.DecodeFile(ctx, art.Path)
		if err != nil {
			return err
		}
		wf = loaded
	}
	if wf.Len() == 0 {
		return audio.ErrEmptyPayload
	}
	return d.device.Play(ctx, wf, started)
}

type nopVisualizer struct{}

func (nopVisualizer) Begin(*audio.Waveform, time.Time) {}
func (nopVisualizer) End()                             {}
