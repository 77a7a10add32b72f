// Package speech 串行合成文本并按顺序播放，驱动播放期间的频谱可视化。
package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/history"
	"github.com/iabetor/sesli/internal/logger"
	"github.com/iabetor/sesli/internal/tts"
)

// Listener 接收流水线的异步信号。回调在独立的分发协程中按发生顺序执行，
// 不持有任何内部锁，可以在回调里调用 Enqueue 或 Stop。
type Listener interface {
	OnReady(art *Artifact)
	OnError(err error)
	OnPlaybackFinished(req Request)
}

// ListenerFuncs 用函数实现 Listener，未设置的回调被忽略。
type ListenerFuncs struct {
	Ready    func(art *Artifact)
	Error    func(err error)
	Finished func(req Request)
}

func (l ListenerFuncs) OnReady(art *Artifact) {
	if l.Ready != nil {
		l.Ready(art)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}

func (l ListenerFuncs) OnPlaybackFinished(req Request) {
	if l.Finished != nil {
		l.Finished(req)
	}
}

// Recorder 持久化请求的生命周期，通常是 *history.Store。
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Options 流水线依赖与参数。Synthesizer 和 Player 必填。
type Options struct {
	Synthesizer Synthesizer
	Player      Player
	Decoder     Decoder
	Visualizer  Visualizer
	Listener    Listener
	Recorder    Recorder
	// Language 决定文本清理使用的符号读法（"tr" 或 "en"）。
	Language string
	// MaxSegmentChars 是 EnqueueReply 分段的最大字符数。
	MaxSegmentChars int
}

type eventKind int

const (
	evRecord eventKind = iota
	evReady
	evError
	evFinished
)

type event struct {
	kind  eventKind
	art   *Artifact
	req   Request
	err   error
	entry *history.Entry
}

// Orchestrator 是语音输出流水线：一个合成协程按 FIFO 处理文本，
// 一个播放协程按 FIFO 播放就绪的音频，同一时刻最多一个合成和一个播放。
type Orchestrator struct {
	opts Options
	sm   *StateMachine

	mu         sync.Mutex
	epoch      uint64
	synthQueue []Request
	playQueue  []*Artifact
	synthBusy  bool
	synthEpoch uint64
	playing    *Artifact
	playEpoch  uint64
	playCancel context.CancelFunc
	events     []event
	started    bool
	closed     bool

	synthWake chan struct{}
	playWake  chan struct{}
	eventWake chan struct{}
	stopEvent chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	workers   sync.WaitGroup
	dispatch  sync.WaitGroup
	closeOnce sync.Once
}

// New 创建流水线，调用 Start 后才开始处理。
func New(opts Options) (*Orchestrator, error) {
	if opts.Synthesizer == nil {
		return nil, fmt.Errorf("缺少 Synthesizer")
	}
	if opts.Player == nil {
		return nil, fmt.Errorf("缺少 Player")
	}
	if opts.Decoder == nil {
		opts.Decoder = audio.NewDecoder(audio.DecoderConfig{})
	}
	if opts.Visualizer == nil {
		opts.Visualizer = nopVisualizer{}
	}
	if opts.Listener == nil {
		opts.Listener = ListenerFuncs{}
	}
	if opts.MaxSegmentChars <= 0 {
		opts.MaxSegmentChars = tts.DefaultMaxSegmentChars
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:      opts,
		sm:        NewStateMachine(),
		synthWake: make(chan struct{}, 1),
		playWake:  make(chan struct{}, 1),
		eventWake: make(chan struct{}, 1),
		stopEvent: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start 启动合成、播放和信号分发协程。重复调用无效。
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.started || o.closed {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	o.workers.Add(2)
	go o.synthLoop()
	go o.playLoop()
	o.dispatch.Add(1)
	go o.dispatchLoop()

	notify(o.synthWake)
	notify(o.playWake)
	logger.Info("[speech] 语音流水线已启动")
}

// Close 停止所有工作并等待协程退出。正在进行的合成会收到 ctx 取消。
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.Stop()
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()

		o.cancel()
		o.workers.Wait()
		o.sm.ForceIdle()
		close(o.stopEvent)
		o.dispatch.Wait()
		logger.Info("[speech] 语音流水线已关闭")
	})
}

// OnStateChange 注册状态变化回调。回调在内部锁内执行，只能做轻量的记录或转发。
func (o *Orchestrator) OnStateChange(fn func(from, to State)) {
	o.sm.SetOnChange(fn)
}

// State 返回当前状态。
func (o *Orchestrator) State() State {
	return o.sm.Current()
}

// Pending 返回等待合成和等待播放的数量（不含正在进行的）。
func (o *Orchestrator) Pending() (synth, playback int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.synthQueue), len(o.playQueue)
}

// Enqueue 清理文本后加入合成队列。
func (o *Orchestrator) Enqueue(text string) (Request, error) {
	clean := tts.CleanText(text, o.opts.Language)
	if clean == "" {
		return Request{}, ErrEmptyText
	}

	req := Request{ID: uuid.NewString(), Text: clean, EnqueuedAt: time.Now()}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Request{}, ErrClosed
	}
	req.Epoch = o.epoch
	o.synthQueue = append(o.synthQueue, req)
	o.emitLocked(event{kind: evRecord, entry: &history.Entry{
		RequestID: req.ID,
		Text:      req.Text,
		Status:    history.StatusQueued,
		CreatedAt: req.EnqueuedAt,
	}})
	o.mu.Unlock()

	logger.Debugf("[speech] 入队 %s: %q", req.ID, truncate(req.Text, 32))
	notify(o.synthWake)
	return req, nil
}

// EnqueueReply 把一段完整回复按句合并为若干段后依次入队。清理后为空的段被跳过。
func (o *Orchestrator) EnqueueReply(text string) ([]Request, error) {
	var reqs []Request
	for _, seg := range tts.MergeSentences(text, o.opts.MaxSegmentChars) {
		req, err := o.Enqueue(seg)
		if errors.Is(err, ErrEmptyText) {
			continue
		}
		if err != nil {
			return reqs, err
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, ErrEmptyText
	}
	return reqs, nil
}

// Stop 清空两个队列，中断当前播放并立即回到 Idle。
// 正在进行的合成不会被等待，其结果到达后被丢弃并删除。
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.epoch++
	droppedReqs := o.synthQueue
	droppedArts := o.playQueue
	o.synthQueue = nil
	o.playQueue = nil
	if o.playCancel != nil {
		o.playCancel()
		o.playCancel = nil
	}
	if o.sm.Current() != StateIdle {
		o.sm.Transition(StateCancelled)
		o.sm.Transition(StateIdle)
	}
	for _, r := range droppedReqs {
		o.emitLocked(cancelledEvent(r.ID))
	}
	for _, a := range droppedArts {
		o.emitLocked(cancelledEvent(a.Request.ID))
	}
	o.mu.Unlock()

	for _, a := range droppedArts {
		a.Release()
	}
	if n := len(droppedReqs) + len(droppedArts); n > 0 {
		logger.Infof("[speech] 已停止，丢弃 %d 个待处理项", n)
	}
}

func (o *Orchestrator) synthLoop() {
	defer o.workers.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.synthWake:
		}
		for o.synthesizeNext() {
		}
	}
}

// synthesizeNext 取出一个请求并合成，队列为空时返回 false。
func (o *Orchestrator) synthesizeNext() bool {
	o.mu.Lock()
	if o.closed || len(o.synthQueue) == 0 {
		o.mu.Unlock()
		return false
	}
	req := o.synthQueue[0]
	o.synthQueue = o.synthQueue[1:]
	o.synthBusy = true
	o.synthEpoch = req.Epoch
	o.settleLocked()
	o.mu.Unlock()

	art, err := o.opts.Synthesizer.Synthesize(o.ctx, req)

	o.mu.Lock()
	o.synthBusy = false
	if req.Epoch != o.epoch || o.closed {
		o.emitLocked(cancelledEvent(req.ID))
		o.settleLocked()
		o.mu.Unlock()
		if art != nil {
			art.Release()
		}
		logger.Debugf("[speech] 丢弃已取消请求 %s 的合成结果", req.ID)
		return true
	}
	if err == nil && art == nil {
		err = ErrEmptyAudio
	}
	if err != nil {
		var se *SynthesisError
		if !errors.As(err, &se) {
			se = &SynthesisError{Request: req, Err: err}
			err = se
		}
		o.sm.Transition(StateError)
		o.emitLocked(event{kind: evError, err: err, entry: &history.Entry{
			RequestID: req.ID,
			Engine:    se.Engine,
			Status:    history.StatusFailed,
			Error:     err.Error(),
		}})
		o.settleLocked()
		o.mu.Unlock()
		logger.Warnf("[speech] %v", err)
		return true
	}
	o.onArtifactReadyLocked(art)
	o.mu.Unlock()

	notify(o.playWake)
	return true
}

// onArtifactReadyLocked 把就绪的音频排到当前播放之后。
func (o *Orchestrator) onArtifactReadyLocked(art *Artifact) {
	o.playQueue = append(o.playQueue, art)
	o.settleLocked()
	o.emitLocked(event{kind: evReady, art: art, entry: &history.Entry{
		RequestID: art.Request.ID,
		Engine:    art.Engine,
		Status:    history.StatusReady,
	}})
}

func (o *Orchestrator) playLoop() {
	defer o.workers.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.playWake:
		}
		for o.playNext() {
		}
	}
}

// playNext 播放队首音频，没有可播放项或已有播放时返回 false。
func (o *Orchestrator) playNext() bool {
	o.mu.Lock()
	if o.closed || o.playing != nil || len(o.playQueue) == 0 {
		o.mu.Unlock()
		return false
	}
	art := o.playQueue[0]
	o.playQueue = o.playQueue[1:]
	epoch := o.epoch
	ctx, cancel := context.WithCancel(o.ctx)
	o.playing = art
	o.playEpoch = epoch
	o.playCancel = cancel
	o.settleLocked()
	o.mu.Unlock()

	err := o.play(ctx, art)
	cancel()
	o.onPlaybackComplete(art, epoch, err)
	return true
}

// play 在开始播放前解码波形。解码失败只影响可视化（退化为闲置波纹），声音仍由 Player 播放。
func (o *Orchestrator) play(ctx context.Context, art *Artifact) error {
	if art.Path != "" {
		if _, err := os.Stat(art.Path); err != nil {
			return &PlaybackError{Request: art.Request, Path: art.Path, Err: ErrArtifactMissing}
		}
	}
	if art.Waveform == nil && art.Path != "" {
		wf, err := o.opts.Decoder.DecodeFile(ctx, art.Path)
		if err != nil {
			logger.Warnf("[speech] 解码 %s 失败，使用闲置可视化: %v", art.Path, err)
		} else {
			art.Waveform = wf
		}
	}

	// 可视化时钟从设备确认开始输出时计时
	var begin sync.Once
	wf := art.Waveform
	started := func() {
		begin.Do(func() { o.opts.Visualizer.Begin(wf, time.Now()) })
	}
	defer o.opts.Visualizer.End()

	logger.Debugf("[speech] 开始播放 %s (%s)", art.Request.ID, art.Duration())
	if err := o.opts.Player.Play(ctx, art, started); err != nil {
		return &PlaybackError{Request: art.Request, Path: art.Path, Err: err}
	}
	return nil
}

// onPlaybackComplete 删除已播放的音频，并推进到下一项或回到 Idle。
// 播放失败同样按完成处理，队列不会因此停滞。
func (o *Orchestrator) onPlaybackComplete(art *Artifact, epoch uint64, err error) {
	art.Release()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.playing == art {
		o.playing = nil
		o.playCancel = nil
	}
	if epoch != o.epoch || o.closed {
		o.emitLocked(cancelledEvent(art.Request.ID))
		o.settleLocked()
		return
	}

	entry := &history.Entry{
		RequestID: art.Request.ID,
		Status:    history.StatusPlayed,
		Duration:  art.Duration(),
	}
	if err != nil {
		logger.Warnf("[speech] %v", err)
		o.sm.Transition(StateError)
		entry.Status = history.StatusFailed
		entry.Error = err.Error()
		o.emitLocked(event{kind: evError, err: err})
	}
	o.emitLocked(event{kind: evFinished, req: art.Request, entry: entry})
	o.settleLocked()
}

// settleLocked 根据当前工作量推导状态：播放优先，其次就绪，再次合成。
// 属于已取消代数的合成与播放不计入。
func (o *Orchestrator) settleLocked() {
	target := StateIdle
	switch {
	case o.playing != nil && o.playEpoch == o.epoch:
		target = StatePlaying
	case len(o.playQueue) > 0:
		target = StateArtifactReady
	case o.synthBusy && o.synthEpoch == o.epoch:
		target = StateSynthesizing
	}
	if cur := o.sm.Current(); cur != target && !o.sm.Transition(target) {
		logger.Warnf("[speech] 无法从 %s 转换到 %s", cur, target)
	}
}

func (o *Orchestrator) emitLocked(ev event) {
	o.events = append(o.events, ev)
	notify(o.eventWake)
}

func (o *Orchestrator) dispatchLoop() {
	defer o.dispatch.Done()
	for {
		o.mu.Lock()
		evs := o.events
		o.events = nil
		o.mu.Unlock()

		for _, ev := range evs {
			o.deliver(ev)
		}
		if len(evs) > 0 {
			continue
		}

		select {
		case <-o.eventWake:
		case <-o.stopEvent:
			o.mu.Lock()
			evs := o.events
			o.events = nil
			o.mu.Unlock()
			for _, ev := range evs {
				o.deliver(ev)
			}
			return
		}
	}
}

func (o *Orchestrator) deliver(ev event) {
	if ev.entry != nil && o.opts.Recorder != nil {
		if err := o.opts.Recorder.Record(context.Background(), *ev.entry); err != nil {
			logger.Warnf("[speech] 写入历史记录失败: %v", err)
		}
	}
	switch ev.kind {
	case evReady:
		o.opts.Listener.OnReady(ev.art)
	case evError:
		o.opts.Listener.OnError(ev.err)
	case evFinished:
		o.opts.Listener.OnPlaybackFinished(ev.req)
	}
}

func cancelledEvent(id string) event {
	return event{kind: evRecord, entry: &history.Entry{RequestID: id, Status: history.StatusCancelled}}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
