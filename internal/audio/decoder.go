package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/iabetor/sesli/internal/logger"
)

// Strategy 是一种把文件解码为 Waveform 的方式。
type Strategy interface {
	Name() string
	Decode(path string) (*Waveform, error)
}

// Decoder 先尝试外部转码，再按顺序执行解码策略，第一个成功的结果胜出。
type Decoder struct {
	transcoder *Transcoder
	strategies []Strategy
}

// DecoderConfig 解码器配置。
type DecoderConfig struct {
	FFmpegPaths      []string
	TargetSampleRate int
	TempDir          string
	// DisableTranscode 跳过外部转码，直接解析原文件（测试或无 ffmpeg 环境）。
	DisableTranscode bool
}

// NewDecoder 创建默认策略顺序的解码器：strict-wav → manual-pcm → mp3。
func NewDecoder(cfg DecoderConfig) *Decoder {
	d := &Decoder{
		strategies: []Strategy{StrictWAV{}, ManualPCM{}, MP3{}},
	}
	if !cfg.DisableTranscode {
		paths := cfg.FFmpegPaths
		if len(paths) == 0 {
			paths = []string{"ffmpeg"}
		}
		d.transcoder = &Transcoder{
			Paths:      paths,
			SampleRate: cfg.TargetSampleRate,
			TempDir:    cfg.TempDir,
		}
	}
	return d
}

// NewDecoderWithStrategies 使用自定义策略列表创建解码器（不转码）。
func NewDecoderWithStrategies(strategies ...Strategy) *Decoder {
	return &Decoder{strategies: strategies}
}

// DecodeFile 解码媒体文件为单声道 Waveform。
// 转码产生的临时文件无论成功与否都会被删除。
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*Waveform, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DecodeError{Path: path, Reason: err}
	}

	source := path
	var attempts []error
	if d.transcoder != nil {
		tmp, err := d.transcoder.Transcode(ctx, path)
		if err != nil {
			attempts = append(attempts, fmt.Errorf("transcode: %w", err))
			logger.Debugf("[audio] 转码不可用，直接解析原文件: %v", err)
		} else {
			defer removeIfExists(tmp)
			source = tmp
		}
	}

	var reason error
	for _, s := range d.strategies {
		wf, err := s.Decode(source)
		if err == nil {
			logger.Debugf("[audio] %s 解码成功: %d 样本, %d Hz", s.Name(), wf.Len(), wf.SampleRate())
			return wf, nil
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", s.Name(), err))
		if reason == nil {
			reason = err
		}
	}
	if reason == nil {
		reason = fmt.Errorf("没有配置解码策略")
	}
	return nil, &DecodeError{Path: path, Reason: reason, Attempts: attempts}
}

// StrictWAV 使用 go-audio/wav 严格解析，只接受 16-bit 整数 PCM。
type StrictWAV struct{}

func (StrictWAV) Name() string { return "strict-wav" }

func (StrictWAV) Decode(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("不是有效的 WAV 文件")
	}
	if dec.WavAudioFormat != wavFormatPCM || dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: strict reader 只支持 16-bit PCM (format=%d, bits=%d)",
			ErrUnsupportedBitDepth, dec.WavAudioFormat, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("读取 PCM 数据失败: %w", err)
	}
	if len(buf.Data) == 0 {
		return nil, ErrEmptyPayload
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	samples := make([]float32, 0, len(buf.Data)/channels+1)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float32(buf.Data[i])/int16Scale)
	}
	return NewWaveform(samples, int(dec.SampleRate))
}

// ManualPCM 手工解析 WAV 头：按固定偏移读取格式字段，
// 通过搜索 "data" 签名定位数据区，支持 16/32-bit 整数和 32-bit 浮点。
type ManualPCM struct{}

func (ManualPCM) Name() string { return "manual-pcm" }

func (ManualPCM) Decode(path string) (*Waveform, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePCM(raw)
}

const (
	wavHeaderSize   = 44
	wavFormatPCM    = 1
	wavFormatFloat  = 3
	riffPreambleLen = 12
)

// ParsePCM 解析内存中的 PCM 容器。
func ParsePCM(raw []byte) (*Waveform, error) {
	if len(raw) < wavHeaderSize {
		return nil, fmt.Errorf("%w: 仅 %d 字节", ErrTruncatedHeader, len(raw))
	}
	format := binary.LittleEndian.Uint16(raw[20:22])
	channels := int(binary.LittleEndian.Uint16(raw[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(raw[24:28]))
	bits := binary.LittleEndian.Uint16(raw[34:36])

	if channels < 1 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: channels=%d rate=%d", ErrTruncatedHeader, channels, sampleRate)
	}

	idx := bytes.Index(raw[riffPreambleLen:], []byte("data"))
	if idx < 0 {
		return nil, ErrMissingData
	}
	chunk := riffPreambleLen + idx
	if chunk+8 > len(raw) {
		return nil, fmt.Errorf("%w: data 块头被截断", ErrTruncatedHeader)
	}
	payload := raw[chunk+8:]
	// 有些编码器写入 0 或超长的 data 大小，此时读到文件末尾
	if size := int(binary.LittleEndian.Uint32(raw[chunk+4 : chunk+8])); size > 0 && size <= len(payload) {
		payload = payload[:size]
	}

	var samples []float32
	switch {
	case bits == 16:
		samples = PCM16ToFloat32(payload)
	case bits == 32 && format == wavFormatFloat:
		samples = Float32LEToFloat32(payload)
	case bits == 32:
		samples = PCM32ToFloat32(payload)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bits)
	}
	if len(samples) == 0 {
		return nil, ErrEmptyPayload
	}
	return NewWaveform(DownmixStride(samples, channels), sampleRate)
}

// MP3 使用 go-mp3 解码，适用于 edge / 腾讯云合成的 MP3 且无 ffmpeg 的环境。
type MP3 struct{}

func (MP3) Name() string { return "mp3" }

func (MP3) Decode(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 3)
	if _, err := io.ReadFull(f, head); err != nil {
		return nil, ErrNotMP3
	}
	if !looksLikeMP3(head) {
		return nil, ErrNotMP3
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	samples, rate, err := DecodeMP3(f)
	if err != nil {
		return nil, err
	}
	return NewWaveform(samples, rate)
}

// DecodeMP3 把 MP3 流解码为单声道 float32 样本。go-mp3 固定输出 16-bit 立体声，左右声道取平均。
func DecodeMP3(r io.Reader) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("创建 MP3 解码器失败: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("读取 MP3 数据失败: %w", err)
	}
	samples := int16StereoToMonoFloat32(pcm)
	if len(samples) == 0 {
		return nil, 0, ErrEmptyPayload
	}
	return samples, dec.SampleRate(), nil
}

// looksLikeMP3 检查 ID3 标签或 MPEG 帧同步字。
func looksLikeMP3(head []byte) bool {
	if len(head) < 3 {
		return false
	}
	if string(head[:3]) == "ID3" {
		return true
	}
	return head[0] == 0xFF && head[1]&0xE0 == 0xE0
}
