package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 实现语音合成，
// 通过 edge-tts-go 获取 MP3 音频，再用 go-mp3 解码为 PCM。
type EdgeEngine struct {
	voice string
}

// NewEdgeEngine 创建指定语音的 Edge TTS 引擎，如 "tr-TR-EmelNeural"。
func NewEdgeEngine(voice string) *EdgeEngine {
	return &EdgeEngine{voice: voice}
}

func (e *EdgeEngine) Name() string { return "edge" }

// Synthesize 将文本合成为单声道 float32 音频样本。
func (e *EdgeEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(text)), e.voice)

	comm, err := edge.NewCommunicate(text, edge.WithVoice(e.voice))
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] edge-tts 开始流式合成失败: %w", err)
	}

	// Stream() 返回的 map 中，type=="audio" 的条目包含音频数据
	var mp3Buf bytes.Buffer
	for msg := range ch {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	if mp3Buf.Len() == 0 {
		return nil, 0, fmt.Errorf("[tts] edge-tts: 未收到音频数据")
	}
	logger.Debugf("[tts] edge-tts: 收到 %d 字节 MP3 数据", mp3Buf.Len())

	samples, rate, err := audio.DecodeMP3(&mp3Buf)
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] edge-tts: %w", err)
	}
	return samples, rate, nil
}
