// Package tts 封装各语音合成后端，并提供合成前的文本清理与分段。
package tts

import (
	"context"
	"fmt"

	"github.com/iabetor/sesli/internal/logger"
)

// Engine 定义语音合成后端接口。
type Engine interface {
	// Name 返回引擎名称，用于日志与历史记录。
	Name() string
	// Synthesize 将文本转换为音频。
	// 返回 float32 音频样本、采样率（Hz）和错误。
	Synthesize(ctx context.Context, text string) ([]float32, int, error)
}

// FallbackEngine 主引擎失败（或返回空音频）时改用备用引擎。
type FallbackEngine struct {
	primary  Engine
	fallback Engine
}

// NewFallbackEngine 组合主备引擎。fallback 为 nil 时直接返回 primary。
func NewFallbackEngine(primary, fallback Engine) Engine {
	if fallback == nil {
		return primary
	}
	return &FallbackEngine{primary: primary, fallback: fallback}
}

func (f *FallbackEngine) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

func (f *FallbackEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	samples, rate, err := f.primary.Synthesize(ctx, text)
	if err == nil && len(samples) > 0 {
		return samples, rate, nil
	}
	if ctx.Err() != nil {
		return nil, 0, ctx.Err()
	}
	logger.Warnf("[tts] %s 合成失败，改用 %s: %v", f.primary.Name(), f.fallback.Name(), err)
	samples, rate, ferr := f.fallback.Synthesize(ctx, text)
	if ferr != nil {
		return nil, 0, fmt.Errorf("主引擎: %v; 备用引擎: %w", err, ferr)
	}
	return samples, rate, nil
}
