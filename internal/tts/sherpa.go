package tts

import (
	"context"
	"fmt"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/sesli/internal/logger"
)

// SherpaConfig sherpa-onnx 离线 VITS 模型配置。
type SherpaConfig struct {
	Model      string
	Tokens     string
	Lexicon    string
	DataDir    string
	SpeakerID  int
	Speed      float32
	NumThreads int
}

// SherpaEngine 使用 sherpa-onnx 离线 VITS 模型合成，不依赖网络。
// 底层模型不是并发安全的，Synthesize 串行执行。
type SherpaEngine struct {
	mu    sync.Mutex
	tts   *sherpa.OfflineTts
	sid   int
	speed float32
}

// NewSherpaEngine 加载模型。
func NewSherpaEngine(cfg SherpaConfig) (*SherpaEngine, error) {
	if cfg.Model == "" || cfg.Tokens == "" {
		return nil, fmt.Errorf("[tts] sherpa 需要 model 和 tokens 路径")
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 2
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}

	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = cfg.Model
	config.Model.Vits.Tokens = cfg.Tokens
	config.Model.Vits.Lexicon = cfg.Lexicon
	config.Model.Vits.DataDir = cfg.DataDir
	config.Model.Vits.NoiseScale = 0.667
	config.Model.Vits.NoiseScaleW = 0.8
	config.Model.Vits.LengthScale = 1.0
	config.Model.NumThreads = cfg.NumThreads
	config.Model.Provider = "cpu"
	config.MaxNumSentences = 1

	t := sherpa.NewOfflineTts(&config)
	if t == nil {
		return nil, fmt.Errorf("[tts] 创建 sherpa 离线合成器失败，模型: %s", cfg.Model)
	}
	logger.Infof("[tts] sherpa 离线合成器已加载: model=%s threads=%d", cfg.Model, cfg.NumThreads)

	return &SherpaEngine{tts: t, sid: cfg.SpeakerID, speed: cfg.Speed}, nil
}

func (e *SherpaEngine) Name() string { return "sherpa" }

// Synthesize 合成文本。生成过程不可中断，ctx 只在开始前检查。
func (e *SherpaEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tts == nil {
		return nil, 0, fmt.Errorf("[tts] sherpa 合成器已关闭")
	}

	logger.Debugf("[tts] sherpa: 正在合成 %d 个字符", len([]rune(text)))
	out := e.tts.Generate(text, e.sid, e.speed)
	if out == nil || len(out.Samples) == 0 {
		return nil, 0, fmt.Errorf("[tts] sherpa: 未生成音频")
	}
	return out.Samples, out.SampleRate, nil
}

// Close 释放模型。
func (e *SherpaEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tts != nil {
		sherpa.DeleteOfflineTts(e.tts)
		e.tts = nil
	}
}
