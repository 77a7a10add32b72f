package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/logger"
)

// saySampleRate 是 afconvert 输出的采样率。
const saySampleRate = 22050

// SayEngine 使用 macOS 内置 say 命令实现语音合成，作为离线备用方案。
// 仅在 macOS 上可用。
type SayEngine struct {
	voice string // macOS 语音名称，如 "Yelda"（土耳其语）
}

// NewSayEngine 创建 macOS say TTS 引擎。
// voice 为空时使用系统默认语音。
func NewSayEngine(voice string) *SayEngine {
	return &SayEngine{voice: voice}
}

func (s *SayEngine) Name() string { return "say" }

// Synthesize 先用 say 输出 AIFF，再用 afconvert 转为 16-bit 单声道 WAV。
func (s *SayEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	logger.Debugf("[tts] say: 正在合成 %d 个字符", len([]rune(text)))

	tmpFile, err := os.CreateTemp("", "sesli-say-*.aiff")
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] say: 创建临时文件失败: %w", err)
	}
	aiffPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(aiffPath)

	wavPath := aiffPath + ".wav"
	defer os.Remove(wavPath)

	args := []string{"-o", aiffPath}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, "say", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, 0, fmt.Errorf("[tts] say 执行失败: %w, stderr: %s", err, stderr.String())
	}

	convertCmd := exec.CommandContext(ctx, "afconvert",
		"-f", "WAVE",
		"-d", fmt.Sprintf("LEI16@%d", saySampleRate),
		"-c", "1",
		aiffPath, wavPath,
	)
	var convertStderr bytes.Buffer
	convertCmd.Stderr = &convertStderr
	if err := convertCmd.Run(); err != nil {
		return nil, 0, fmt.Errorf("[tts] afconvert 执行失败: %w, stderr: %s", err, convertStderr.String())
	}

	wavData, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] say: 读取输出文件失败: %w", err)
	}
	// afconvert 会在 data 之前插入 FLLR 填充块，按签名查找数据区
	wf, err := audio.ParsePCM(wavData)
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] say: %w", err)
	}
	return wf.Samples(), wf.SampleRate(), nil
}
