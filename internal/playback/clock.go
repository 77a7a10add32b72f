// Package playback 把挂钟时间映射到波形样本位置，并在每个定时 tick 上驱动频谱分析。
package playback

import "time"

// FrameRate 可视化帧率，每帧读取 sampleRate/FrameRate 个样本。
const FrameRate = 60

// Clock 记录播放开始时刻。设备没有逐样本回调，播放位置由经过的挂钟时间推算，
// 定时器抖动和设备缓冲带来的几十毫秒偏差是可接受的。
type Clock struct {
	start time.Time
}

// NewClock 以 start 作为播放起点。
func NewClock(start time.Time) Clock {
	return Clock{start: start}
}

// Start 返回播放起点。
func (c Clock) Start() time.Time { return c.start }

// Elapsed 返回从起点到 now 经过的时间，now 早于起点时返回 0。
func (c Clock) Elapsed(now time.Time) time.Duration {
	d := now.Sub(c.start)
	if d < 0 {
		return 0
	}
	return d
}

// SampleOffset 返回 now 时刻对应的样本下标：elapsed_ms / 1000 × sampleRate（向下取整）。
func (c Clock) SampleOffset(now time.Time, sampleRate int) int {
	ms := c.Elapsed(now).Milliseconds()
	return int(float64(ms) / 1000 * float64(sampleRate))
}
