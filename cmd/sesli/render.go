package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iabetor/sesli/internal/playback"
)

var barChars = []rune(" ▁▂▃▄▅▆▇█")

// renderBars 把频带值画成一行字符。频带多于 width 时相邻频带取最大值合并。
func renderBars(bands []float64, width int) string {
	if width <= 0 || len(bands) == 0 {
		return ""
	}
	if width > len(bands) {
		width = len(bands)
	}
	var b strings.Builder
	for col := 0; col < width; col++ {
		lo := col * len(bands) / width
		hi := (col + 1) * len(bands) / width
		level := 0.0
		for _, v := range bands[lo:hi] {
			if v > level {
				level = v
			}
		}
		if level > 1 {
			level = 1
		}
		b.WriteRune(barChars[int(level*float64(len(barChars)-1))])
	}
	return b.String()
}

func renderLoop(ctx context.Context, w io.Writer, m *playback.Monitor, interval time.Duration) {
	if interval <= 0 {
		interval = playback.DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprint(w, "\r\033[K")
			return
		case <-ticker.C:
			if !m.IsActive() {
				continue
			}
			fmt.Fprintf(w, "\r%s", renderBars(m.CurrentBands(), 64))
		}
	}
}
