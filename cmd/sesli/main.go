package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/config"
	"github.com/iabetor/sesli/internal/database"
	"github.com/iabetor/sesli/internal/history"
	"github.com/iabetor/sesli/internal/logger"
	"github.com/iabetor/sesli/internal/playback"
	"github.com/iabetor/sesli/internal/speech"
	"github.com/iabetor/sesli/internal/tts"
)

func main() {
	configPath := flag.String("config", "configs/sesli.yaml", "配置文件路径")
	showBars := flag.Bool("bars", false, "在终端绘制频谱条")
	flag.Parse()

	hc, err := config.NewHotConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := hc.Get()

	if err := logger.Init(cfg.Logger()); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] sesli 启动中 (engine=%s, language=%s)", cfg.TTS.Engine, cfg.TTS.Language)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	if err := run(ctx, hc, *showBars); err != nil {
		logger.Errorf("[main] 运行出错: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("[main] sesli 已停止")
}

func run(ctx context.Context, hc *config.HotConfig, showBars bool) error {
	cfg := hc.Get()

	engine, err := tts.New(cfg.Engines())
	if err != nil {
		return fmt.Errorf("创建 TTS 引擎失败: %w", err)
	}
	if c, ok := engine.(interface{ Close() }); ok {
		defer c.Close()
	}

	device, err := audio.NewPlayer(1)
	if err != nil {
		return fmt.Errorf("创建播放器失败: %w", err)
	}
	defer device.Close()

	monitor := playback.NewMonitor(cfg.Spectrum())
	go monitor.Run(ctx, cfg.TickInterval())

	hc.OnReload(func(c *config.Config) {
		monitor.SetConfig(c.Spectrum())
	})
	if err := hc.Watch(ctx); err != nil {
		logger.Warnf("[main] 配置热更新不可用: %v", err)
	}

	var (
		recorder speech.Recorder
		store    *history.Store
	)
	if cfg.History.Enabled {
		db, err := database.Open(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("打开历史数据库失败: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("初始化历史数据库失败: %w", err)
		}
		store = history.NewStore(db)
		recorder = store
	}

	orch, err := speech.New(speech.Options{
		Synthesizer: speech.NewFileSynthesizer(engine, cfg.Audio.TempDir),
		Player:      speech.NewDevicePlayer(device),
		Decoder:     audio.NewDecoder(cfg.Decoder()),
		Visualizer:  monitor,
		Recorder:    recorder,
		Listener: speech.ListenerFuncs{
			Error: func(err error) { logger.Warnf("[main] %v", err) },
			Finished: func(req speech.Request) {
				logger.Debugf("[main] 播放完成: %s", req.ID)
			},
		},
		Language:        cfg.TTS.Language,
		MaxSegmentChars: cfg.TTS.MaxSegmentChars,
	})
	if err != nil {
		return err
	}
	orch.Start()
	defer orch.Close()

	if showBars {
		go renderLoop(ctx, os.Stderr, monitor, cfg.TickInterval())
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				waitIdle(ctx, orch)
				return nil
			}
			handleLine(ctx, line, orch, store)
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// handleLine 处理一行输入："/stop" 停止播报，"/history" 打印最近记录，其余文本入队朗读。
func handleLine(ctx context.Context, line string, orch *speech.Orchestrator, store *history.Store) {
	switch strings.TrimSpace(line) {
	case "":
		return
	case "/stop":
		orch.Stop()
	case "/history":
		printHistory(ctx, os.Stdout, store)
	default:
		if _, err := orch.EnqueueReply(line); err != nil {
			logger.Warnf("[main] 入队失败: %v", err)
		}
	}
}

func printHistory(ctx context.Context, w io.Writer, store *history.Store) {
	if store == nil {
		fmt.Fprintln(w, "历史记录未启用")
		return
	}
	entries, err := store.List(ctx, 10)
	if err != nil {
		logger.Warnf("[main] 读取历史失败: %v", err)
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-9s %-8s %6s  %s\n",
			e.CreatedAt.Format("15:04:05"), e.Status, e.Engine, e.Duration.Round(100*time.Millisecond), e.Text)
	}
}

// waitIdle 输入结束后等待剩余的播报完成。
func waitIdle(ctx context.Context, orch *speech.Orchestrator) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		synth, play := orch.Pending()
		if orch.State() == speech.StateIdle && synth == 0 && play == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
