package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/iabetor/sesli/internal/logger"
)

// Transcoder 调用外部 ffmpeg 把任意媒体文件转成 16-bit 单声道 PCM WAV。
type Transcoder struct {
	// Paths 按优先级尝试的可执行文件，如 ["/opt/ffmpeg/bin/ffmpeg", "ffmpeg"]。
	Paths      []string
	SampleRate int
	TempDir    string
}

// Transcode 转码 src，成功时返回临时 WAV 文件路径，调用方负责删除。
// 失败时不会留下临时文件。
func (t *Transcoder) Transcode(ctx context.Context, src string) (string, error) {
	var errs []error
	tried := 0
	for _, candidate := range t.Paths {
		bin, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}
		tried++
		dst, err := t.run(ctx, bin, src)
		if err == nil {
			return dst, nil
		}
		logger.Debugf("[audio] %s 转码失败: %v", bin, err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if tried == 0 {
		return "", ErrNoConverter
	}
	return "", errors.Join(errs...)
}

func (t *Transcoder) run(ctx context.Context, bin, src string) (string, error) {
	tmp, err := os.CreateTemp(t.TempDir, "sesli-transcode-*.wav")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	dst := tmp.Name()
	tmp.Close()

	rate := t.SampleRate
	if rate <= 0 {
		rate = 44100
	}

	cmd := exec.CommandContext(ctx, bin,
		"-y", "-i", src,
		"-vn", "-acodec", "pcm_s16le", "-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "wav", "-loglevel", "error",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		removeIfExists(dst)
		return "", fmt.Errorf("ffmpeg 执行失败: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return dst, nil
}

// removeIfExists 删除文件，不存在时静默返回。
func removeIfExists(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := os.Remove(path); err != nil {
		logger.Warnf("[audio] 删除临时文件 %s 失败: %v", path, err)
	}
}
