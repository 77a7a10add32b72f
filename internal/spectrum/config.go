package spectrum

import (
	"errors"
	"fmt"
)

// Config 频谱分析参数。
type Config struct {
	BandCount    int     // 频带数量
	HistoryDepth int     // 历史帧数，用于加权平滑
	Attack       float64 // 上升时新值的权重
	Release      float64 // 下降时新值的权重
	PeakDecay    float64 // 峰值保持每帧衰减系数
	SilenceDecay float64 // 静音（块太短或播放结束）时频带衰减系数
	NormDivisor  float64 // 平均幅度归一化除数
	BandExponent float64 // 频带划分的幂指数，>1 时低频分辨率更高
	MinChunk     int     // 参与分析的最小样本数，少于此值按静音处理
}

// DefaultConfig 返回默认参数。
func DefaultConfig() Config {
	return Config{
		BandCount:    64,
		HistoryDepth: 8,
		Attack:       0.8,
		Release:      0.25,
		PeakDecay:    0.97,
		SilenceDecay: 0.93,
		NormDivisor:  100,
		BandExponent: 1.5,
		MinChunk:     33,
	}
}

// Validate 检查参数是否合法。
func (c Config) Validate() error {
	var errs []error
	if c.BandCount <= 0 {
		errs = append(errs, fmt.Errorf("band_count 必须为正数，当前 %d", c.BandCount))
	}
	if c.HistoryDepth <= 0 {
		errs = append(errs, fmt.Errorf("history_depth 必须为正数，当前 %d", c.HistoryDepth))
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"attack", c.Attack},
		{"release", c.Release},
		{"peak_decay", c.PeakDecay},
		{"silence_decay", c.SilenceDecay},
	} {
		if f.v < 0 || f.v > 1 {
			errs = append(errs, fmt.Errorf("%s 必须在 [0,1] 范围内，当前 %g", f.name, f.v))
		}
	}
	if c.NormDivisor <= 0 {
		errs = append(errs, fmt.Errorf("norm_divisor 必须为正数，当前 %g", c.NormDivisor))
	}
	if c.BandExponent <= 0 {
		errs = append(errs, fmt.Errorf("band_exponent 必须为正数，当前 %g", c.BandExponent))
	}
	if c.MinChunk < 2 {
		errs = append(errs, fmt.Errorf("min_chunk 至少为 2，当前 %d", c.MinChunk))
	}
	return errors.Join(errs...)
}
