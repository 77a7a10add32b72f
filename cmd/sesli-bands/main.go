// sesli-bands 解码音频文件，打印指定播放位置的频带向量，用于离线检查可视化效果。
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/config"
	"github.com/iabetor/sesli/internal/logger"
	"github.com/iabetor/sesli/internal/playback"
	"github.com/iabetor/sesli/internal/spectrum"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（可选，用于读取 analyzer 与 audio 参数）")
	offset := flag.Duration("at", 500*time.Millisecond, "播放位置")
	frames := flag.Int("frames", 0, "在该位置之前预热的帧数，0 表示使用 history_depth")
	noTranscode := flag.Bool("no-transcode", false, "不调用 ffmpeg，直接解析文件")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "用法: sesli-bands [选项] <音频文件>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	sc := spectrum.DefaultConfig()
	dc := audio.DecoderConfig{}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
		if err := logger.Init(cfg.Logger()); err != nil {
			fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
			os.Exit(1)
		}
		sc = cfg.Spectrum()
		dc = cfg.Decoder()
	}
	dc.DisableTranscode = *noTranscode

	wf, err := audio.NewDecoder(dc).DecodeFile(context.Background(), flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	n := *frames
	if n <= 0 {
		n = sc.HistoryDepth
	}
	bands := probe(wf, sc, *offset, n)
	printBands(os.Stdout, wf, *offset, bands)
}

// probe 模拟以 60 帧/秒播放到 at 位置，返回该时刻的频带值。
func probe(wf *audio.Waveform, cfg spectrum.Config, at time.Duration, frames int) []float64 {
	start := time.Unix(0, 0)
	sampler := playback.NewSampler(playback.NewClock(start))
	analyzer := spectrum.NewAnalyzer(cfg)
	st := spectrum.NewState(cfg)

	frame := time.Second / playback.FrameRate
	for k := frames - 1; k >= 0; k-- {
		now := start.Add(at - time.Duration(k)*frame)
		chunk := sampler.Chunk(wf, now)
		if chunk.EndOfStream {
			analyzer.Decay(st)
			continue
		}
		analyzer.Analyze(chunk.Samples, st)
	}
	return st.Snapshot()
}

func printBands(w io.Writer, wf *audio.Waveform, at time.Duration, bands []float64) {
	fmt.Fprintf(w, "# %d Hz, %d 样本, 时长 %s, 位置 %s\n", wf.SampleRate(), wf.Len(), wf.Duration(), at)
	peak := 0
	for i, v := range bands {
		fmt.Fprintf(w, "%2d %.4f\n", i, v)
		if v > bands[peak] {
			peak = i
		}
	}
	if len(bands) > 0 {
		fmt.Fprintf(w, "# 最强频带 %d (%.4f)\n", peak, bands[peak])
	}
}
