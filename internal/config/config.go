package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/database"
	"github.com/iabetor/sesli/internal/logger"
	"github.com/iabetor/sesli/internal/spectrum"
	"github.com/iabetor/sesli/internal/tts"
)

// Config 是 sesli 的顶层配置结构。
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Playback PlaybackConfig `yaml:"playback"`
	TTS      TTSConfig      `yaml:"tts"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
}

// AudioConfig 解码与转码配置。
type AudioConfig struct {
	// TargetSampleRate 外部转码输出的采样率。
	TargetSampleRate int `yaml:"target_sample_rate"`
	// FFmpegPaths 按顺序尝试的转码器路径。
	FFmpegPaths []string `yaml:"ffmpeg_paths"`
	TempDir     string   `yaml:"temp_dir"`
}

// AnalyzerConfig 频谱分析参数，0 表示使用默认值。
type AnalyzerConfig struct {
	BandCount    int     `yaml:"band_count"`
	HistoryDepth int     `yaml:"history_depth"`
	Attack       float64 `yaml:"attack"`
	Release      float64 `yaml:"release"`
	PeakDecay    float64 `yaml:"peak_decay"`
	SilenceDecay float64 `yaml:"silence_decay"`
	NormDivisor  float64 `yaml:"norm_divisor"`
	BandExponent float64 `yaml:"band_exponent"`
	MinChunk     int     `yaml:"min_chunk"`
}

// PlaybackConfig 可视化刷新配置。
type PlaybackConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	Engine   string `yaml:"engine"`
	Fallback string `yaml:"fallback"`
	// Language 决定符号的朗读方式："tr" 或 "en"。
	Language        string        `yaml:"language"`
	MaxSegmentChars int           `yaml:"max_segment_chars"`
	Edge            EdgeConfig    `yaml:"edge"`
	Tencent         TencentConfig `yaml:"tencent"`
	Piper           PiperConfig   `yaml:"piper"`
	Say             SayConfig     `yaml:"say"`
	Sherpa          SherpaConfig  `yaml:"sherpa"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string  `yaml:"secret_id"`
	SecretKey string  `yaml:"secret_key"`
	VoiceType int64   `yaml:"voice_type"`
	Region    string  `yaml:"region"`
	Speed     float64 `yaml:"speed"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	Voice string `yaml:"voice"`
}

// PiperConfig Piper TTS 配置。
type PiperConfig struct {
	ModelPath string `yaml:"model_path"`
}

// SayConfig macOS say 配置。
type SayConfig struct {
	Voice string `yaml:"voice"`
}

// SherpaConfig sherpa-onnx 离线模型配置。
type SherpaConfig struct {
	Model      string  `yaml:"model"`
	Tokens     string  `yaml:"tokens"`
	Lexicon    string  `yaml:"lexicon"`
	DataDir    string  `yaml:"data_dir"`
	SpeakerID  int     `yaml:"speaker_id"`
	Speed      float32 `yaml:"speed"`
	NumThreads int     `yaml:"num_threads"`
}

// HistoryConfig 播报历史配置。
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

var knownEngines = map[string]bool{
	"edge": true, "tencent": true, "piper": true, "say": true, "sherpa": true,
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容，填充默认值并校验。
func Parse(data []byte) (*Config, error) {
	// 展开环境变量，如 ${SESLI_TENCENT_SECRET_KEY}
	expanded := os.Expand(string(data), os.Getenv)

	// 历史记录默认开启，yaml 中显式写 false 才关闭
	cfg := &Config{History: HistoryConfig{Enabled: true}}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Audio.TargetSampleRate == 0 {
		cfg.Audio.TargetSampleRate = 44100
	}
	if len(cfg.Audio.FFmpegPaths) == 0 {
		cfg.Audio.FFmpegPaths = []string{"ffmpeg"}
	}

	def := spectrum.DefaultConfig()
	a := &cfg.Analyzer
	if a.BandCount == 0 {
		a.BandCount = def.BandCount
	}
	if a.HistoryDepth == 0 {
		a.HistoryDepth = def.HistoryDepth
	}
	if a.Attack == 0 {
		a.Attack = def.Attack
	}
	if a.Release == 0 {
		a.Release = def.Release
	}
	if a.PeakDecay == 0 {
		a.PeakDecay = def.PeakDecay
	}
	if a.SilenceDecay == 0 {
		a.SilenceDecay = def.SilenceDecay
	}
	if a.NormDivisor == 0 {
		a.NormDivisor = def.NormDivisor
	}
	if a.BandExponent == 0 {
		a.BandExponent = def.BandExponent
	}
	if a.MinChunk == 0 {
		a.MinChunk = def.MinChunk
	}

	if cfg.Playback.TickIntervalMs == 0 {
		cfg.Playback.TickIntervalMs = 16
	}

	if cfg.TTS.Engine == "" {
		cfg.TTS.Engine = "edge"
	}
	if cfg.TTS.Language == "" {
		cfg.TTS.Language = "tr"
	}
	if cfg.TTS.MaxSegmentChars == 0 {
		cfg.TTS.MaxSegmentChars = tts.DefaultMaxSegmentChars
	}
	if cfg.TTS.Edge.Voice == "" {
		cfg.TTS.Edge.Voice = "tr-TR-EmelNeural"
	}
	if cfg.TTS.Tencent.Region == "" {
		cfg.TTS.Tencent.Region = "ap-guangzhou"
	}

	if cfg.History.DBPath == "" {
		cfg.History.DBPath = database.DefaultPath()
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Go 不会自动展开 ~，需要手动替换为用户主目录
	cfg.Audio.TempDir = expandHome(cfg.Audio.TempDir)
	cfg.History.DBPath = expandHome(cfg.History.DBPath)
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.TTS.Piper.ModelPath = expandHome(cfg.TTS.Piper.ModelPath)
	cfg.TTS.Sherpa.Model = expandHome(cfg.TTS.Sherpa.Model)
	cfg.TTS.Sherpa.Tokens = expandHome(cfg.TTS.Sherpa.Tokens)
	cfg.TTS.Sherpa.Lexicon = expandHome(cfg.TTS.Sherpa.Lexicon)
	cfg.TTS.Sherpa.DataDir = expandHome(cfg.TTS.Sherpa.DataDir)

	// 去除密钥两端可能的空白（环境变量展开后常见）
	cfg.TTS.Tencent.SecretID = strings.TrimSpace(cfg.TTS.Tencent.SecretID)
	cfg.TTS.Tencent.SecretKey = strings.TrimSpace(cfg.TTS.Tencent.SecretKey)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return p
	}
	return home + p[1:]
}

// Validate 检查配置是否合法，返回所有问题的合并错误。
func (c *Config) Validate() error {
	var errs []error
	if !knownEngines[c.TTS.Engine] {
		errs = append(errs, fmt.Errorf("未知的 TTS 引擎: %s", c.TTS.Engine))
	}
	if c.TTS.Fallback != "" && !knownEngines[c.TTS.Fallback] {
		errs = append(errs, fmt.Errorf("未知的备用 TTS 引擎: %s", c.TTS.Fallback))
	}
	switch strings.ToLower(c.TTS.Language) {
	case "tr", "en":
	default:
		errs = append(errs, fmt.Errorf("不支持的语言: %s", c.TTS.Language))
	}
	if c.TTS.MaxSegmentChars < 0 {
		errs = append(errs, fmt.Errorf("max_segment_chars 不能为负数"))
	}
	if c.Playback.TickIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("tick_interval_ms 不能为负数"))
	}
	if c.Audio.TargetSampleRate < 0 {
		errs = append(errs, fmt.Errorf("target_sample_rate 不能为负数"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := c.Spectrum().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analyzer: %w", err))
	}
	return errors.Join(errs...)
}

// Spectrum 转换为频谱分析参数。
func (c *Config) Spectrum() spectrum.Config {
	a := c.Analyzer
	return spectrum.Config{
		BandCount:    a.BandCount,
		HistoryDepth: a.HistoryDepth,
		Attack:       a.Attack,
		Release:      a.Release,
		PeakDecay:    a.PeakDecay,
		SilenceDecay: a.SilenceDecay,
		NormDivisor:  a.NormDivisor,
		BandExponent: a.BandExponent,
		MinChunk:     a.MinChunk,
	}
}

// TickInterval 返回可视化刷新间隔。
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickIntervalMs) * time.Millisecond
}

// Decoder 转换为解码器配置。
func (c *Config) Decoder() audio.DecoderConfig {
	return audio.DecoderConfig{
		FFmpegPaths:      c.Audio.FFmpegPaths,
		TargetSampleRate: c.Audio.TargetSampleRate,
		TempDir:          c.Audio.TempDir,
	}
}

// Engines 转换为 TTS 引擎工厂参数。
func (c *Config) Engines() tts.Options {
	t := c.TTS
	return tts.Options{
		Engine:     t.Engine,
		Fallback:   t.Fallback,
		EdgeVoice:  t.Edge.Voice,
		PiperModel: t.Piper.ModelPath,
		SayVoice:   t.Say.Voice,
		Tencent: tts.TencentConfig{
			SecretID:  t.Tencent.SecretID,
			SecretKey: t.Tencent.SecretKey,
			VoiceType: t.Tencent.VoiceType,
			Region:    t.Tencent.Region,
			Speed:     t.Tencent.Speed,
		},
		Sherpa: tts.SherpaConfig{
			Model:      t.Sherpa.Model,
			Tokens:     t.Sherpa.Tokens,
			Lexicon:    t.Sherpa.Lexicon,
			DataDir:    t.Sherpa.DataDir,
			SpeakerID:  t.Sherpa.SpeakerID,
			Speed:      t.Sherpa.Speed,
			NumThreads: t.Sherpa.NumThreads,
		},
	}
}

// Logger 转换为日志配置。
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
	}
}
