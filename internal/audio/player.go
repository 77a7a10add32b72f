package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/sesli/internal/logger"
)

// ErrPlayerClosed 播放器已关闭。
var ErrPlayerClosed = errors.New("播放器已关闭")

// Player 使用 malgo (miniaudio) 管理音频播放。
type Player struct {
	ctx      *malgo.AllocatedContext
	channels uint32
	mu       sync.Mutex
	closed   bool
}

// NewPlayer 创建一个新的音频播放实例。
// channels: 声道数，通常为 1（单声道）
func NewPlayer(channels int) (*Player, error) {
	if channels < 1 {
		channels = 1
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化播放上下文失败: %w", err)
	}

	return &Player{
		ctx:      ctx,
		channels: uint32(channels),
	}, nil
}

// Play 通过默认扬声器播放 Waveform，按其自身采样率打开设备。
// 设备启动后调用 started（可为 nil），播放时钟应从此刻开始计时。
// 阻塞直到播放完成或 ctx 被取消。
func (p *Player) Play(ctx context.Context, wf *Waveform, started func()) error {
	if wf == nil || wf.Len() == 0 {
		if started != nil {
			started()
		}
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	mctx := p.ctx.Context
	p.mu.Unlock()

	pcmBytes := Float32ToBytes(wf.samples)
	pos := 0
	done := make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = p.channels
	deviceConfig.SampleRate = uint32(wf.SampleRate())
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			need := int(frameCount) * int(p.channels) * 2
			if need > len(out) {
				need = len(out)
			}
			if pos >= len(pcmBytes) {
				clear(out[:need])
				select {
				case done <- struct{}{}:
				default:
				}
				return
			}
			n := copy(out[:need], pcmBytes[pos:])
			clear(out[n:need])
			pos += n
		},
	}

	device, err := malgo.InitDevice(mctx, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("启动播放设备失败: %w", err)
	}
	defer device.Stop()
	if started != nil {
		started()
	}

	select {
	case <-ctx.Done():
		logger.Debug("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		logger.Debugf("[audio] 播放完成 (%s)", wf.Duration())
		return nil
	}
}

// Close 释放所有资源。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
