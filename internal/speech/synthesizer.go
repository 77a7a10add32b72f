package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/logger"
	"github.com/iabetor/sesli/internal/tts"
)

// Synthesizer 把请求合成为音频文件。
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Artifact, error)
}

// SynthesizerFunc 把普通函数适配为 Synthesizer。
type SynthesizerFunc func(ctx context.Context, req Request) (*Artifact, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, req Request) (*Artifact, error) {
	return f(ctx, req)
}

// FileSynthesizer 调用 TTS 引擎，并将结果写为 16-bit 单声道 WAV 临时文件。
type FileSynthesizer struct {
	engine tts.Engine
	dir    string
}

// NewFileSynthesizer 创建合成器。dir 为空时使用系统临时目录。
func NewFileSynthesizer(engine tts.Engine, dir string) *FileSynthesizer {
	return &FileSynthesizer{engine: engine, dir: dir}
}

// Synthesize 合成并落盘。所有失败都包装为 *SynthesisError，失败时不留下文件。
func (s *FileSynthesizer) Synthesize(ctx context.Context, req Request) (*Artifact, error) {
	name := s.engine.Name()
	fail := func(err error) (*Artifact, error) {
		return nil, &SynthesisError{Request: req, Engine: name, Err: err}
	}

	samples, rate, err := s.engine.Synthesize(ctx, req.Text)
	if err != nil {
		return fail(err)
	}
	if len(samples) == 0 || rate <= 0 {
		return fail(ErrEmptyAudio)
	}

	dir := s.dir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "sesli-"+uuid.NewString()+".wav")
	if err := writeWAV(path, samples, rate); err != nil {
		os.Remove(path)
		return fail(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(err)
	}
	if info.Size() <= 44 {
		os.Remove(path)
		return fail(ErrEmptyAudio)
	}

	logger.Debugf("[speech] 合成完成 %s: %d 样本 @ %d Hz -> %s", req.ID, len(samples), rate, path)
	return &Artifact{Request: req, Path: path, Engine: name}, nil
}

// writeWAV 用 go-audio/wav 写出 16-bit 单声道 PCM。
func writeWAV(path string, samples []float32, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建音频文件失败: %w", err)
	}

	pcm := audio.Float32ToInt16(samples)
	data := make([]int, len(pcm))
	for i, v := range pcm {
		data[i] = int(v)
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("写入 WAV 数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("写入 WAV 头失败: %w", err)
	}
	return f.Close()
}
