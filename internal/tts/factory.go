package tts

import (
	"fmt"

	"github.com/iabetor/sesli/internal/logger"
)

// Options 描述要创建的主引擎、备用引擎以及各引擎的参数。
type Options struct {
	Engine     string
	Fallback   string
	EdgeVoice  string
	Tencent    TencentConfig
	PiperModel string
	SayVoice   string
	Sherpa     SherpaConfig
}

// New 按名称创建引擎；配置了不同的 Fallback 时包装为 FallbackEngine。
// 备用引擎创建失败只记录警告，不影响主引擎。
func New(opts Options) (Engine, error) {
	primary, err := newEngine(opts.Engine, opts)
	if err != nil {
		return nil, err
	}
	if opts.Fallback == "" || opts.Fallback == opts.Engine {
		return primary, nil
	}
	fallback, err := newEngine(opts.Fallback, opts)
	if err != nil {
		logger.Warnf("[tts] 备用引擎 %s 不可用: %v", opts.Fallback, err)
		return primary, nil
	}
	return NewFallbackEngine(primary, fallback), nil
}

func newEngine(name string, opts Options) (Engine, error) {
	switch name {
	case "edge":
		return NewEdgeEngine(opts.EdgeVoice), nil
	case "tencent":
		e, err := NewTencentEngine(opts.Tencent)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "piper":
		if opts.PiperModel == "" {
			return nil, fmt.Errorf("piper 需要 model_path")
		}
		return NewPiperEngine(opts.PiperModel), nil
	case "say":
		return NewSayEngine(opts.SayVoice), nil
	case "sherpa":
		e, err := NewSherpaEngine(opts.Sherpa)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("未知的 TTS 引擎: %s", name)
	}
}
