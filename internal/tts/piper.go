package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/logger"
)

// piperSampleRate 是 piper 输出的固定采样率。
const piperSampleRate = 22050

// PiperEngine 使用 piper CLI 子进程实现语音合成，作为离线备用方案。
type PiperEngine struct {
	bin       string
	modelPath string
}

// NewPiperEngine 创建指定模型的 Piper TTS 引擎。
func NewPiperEngine(modelPath string) *PiperEngine {
	return &PiperEngine{bin: "piper", modelPath: modelPath}
}

func (p *PiperEngine) Name() string { return "piper" }

// Synthesize 使用 piper CLI 将文本转换为单声道 float32 音频样本。
// piper 输出 signed 16-bit LE 单声道 PCM，采样率 22050 Hz。
func (p *PiperEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	logger.Debugf("[tts] piper: 正在合成 %d 个字符，模型=%s", len([]rune(text)), p.modelPath)

	cmd := exec.CommandContext(ctx, p.bin, "--model", p.modelPath, "--output-raw")
	cmd.Stdin = bytes.NewReader([]byte(text))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s := stderr.String(); s != "" {
			logger.Warnf("[tts] piper stderr: %s", s)
		}
		return nil, 0, fmt.Errorf("[tts] piper 执行失败: %w", err)
	}

	if stdout.Len() == 0 {
		return nil, 0, fmt.Errorf("[tts] piper: 未收到音频数据")
	}
	logger.Debugf("[tts] piper: 收到 %d 字节原始 PCM", stdout.Len())

	return audio.PCM16ToFloat32(stdout.Bytes()), piperSampleRate, nil
}
