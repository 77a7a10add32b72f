package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iabetor/sesli/internal/audio"
	"github.com/iabetor/sesli/internal/history"
)

// stubSynth 立即生成一个带波形的临时文件；fail 中的文本返回错误，gate 中的文本阻塞到通道关闭。
type stubSynth struct {
	t    *testing.T
	dir  string
	fail map[string]error
	gate map[string]chan struct{}

	mu      sync.Mutex
	started []string
	done    []string
	paths   []string
}

func newStubSynth(t *testing.T) *stubSynth {
	return &stubSynth{t: t, dir: t.TempDir(), fail: map[string]error{}, gate: map[string]chan struct{}{}}
}

func (s *stubSynth) Synthesize(ctx context.Context, req Request) (*Artifact, error) {
	s.mu.Lock()
	s.started = append(s.started, req.Text)
	gate := s.gate[req.Text]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	defer func() {
		s.mu.Lock()
		s.done = append(s.done, req.Text)
		s.mu.Unlock()
	}()

	if err := s.fail[req.Text]; err != nil {
		return nil, &SynthesisError{Request: req, Engine: "stub", Err: err}
	}
	path := filepath.Join(s.dir, req.ID+".wav")
	if err := os.WriteFile(path, []byte("RIFF0000WAVE"), 0o644); err != nil {
		s.t.Errorf("write artifact: %v", err)
		return nil, err
	}
	wf, _ := audio.NewWaveform([]float32{0, 0.5, 0}, 16000)

	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	return &Artifact{Request: req, Path: path, Engine: "stub", Waveform: wf}, nil
}

func (s *stubSynth) count() (started, done int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.started), len(s.done)
}

func (s *stubSynth) allPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// stubPlayer 记录播放顺序；fail 中的文本返回错误，block 中的文本阻塞到通道关闭或 ctx 取消。
type stubPlayer struct {
	fail  map[string]error
	block map[string]chan struct{}

	mu     sync.Mutex
	played []string
	errs   []error
}

func newStubPlayer() *stubPlayer {
	return &stubPlayer{fail: map[string]error{}, block: map[string]chan struct{}{}}
}

func (p *stubPlayer) Play(ctx context.Context, art *Artifact, started func()) error {
	if p.fail[art.Request.Text] == nil {
		started()
	}
	p.mu.Lock()
	p.played = append(p.played, art.Request.Text)
	ch := p.block[art.Request.Text]
	p.mu.Unlock()

	var err error
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err == nil {
		err = p.fail[art.Request.Text]
	}
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
	return err
}

func (p *stubPlayer) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type collector struct {
	mu       sync.Mutex
	ready    []string
	errs     []error
	finished []string
}

func (c *collector) listener() Listener {
	return ListenerFuncs{
		Ready: func(a *Artifact) {
			c.mu.Lock()
			c.ready = append(c.ready, a.Request.Text)
			c.mu.Unlock()
		},
		Error: func(err error) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
		},
		Finished: func(r Request) {
			c.mu.Lock()
			c.finished = append(c.finished, r.Text)
			c.mu.Unlock()
		},
	}
}

func (c *collector) snapshot() (ready []string, errs []error, finished []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ready...), append([]error(nil), c.errs...), append([]string(nil), c.finished...)
}

type stubVisualizer struct {
	mu     sync.Mutex
	begins int
	ends   int
	last   *audio.Waveform
}

func (v *stubVisualizer) Begin(wf *audio.Waveform, _ time.Time) {
	v.mu.Lock()
	v.begins++
	v.last = wf
	v.mu.Unlock()
}

func (v *stubVisualizer) counts() (begins, ends int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.begins, v.ends
}

func (v *stubVisualizer) End() {
	v.mu.Lock()
	v.ends++
	v.mu.Unlock()
}

type memRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (r *memRecorder) Record(_ context.Context, e history.Entry) error {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return nil
}

func (r *memRecorder) statuses(id string) []history.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []history.Status
	for _, e := range r.entries {
		if e.RequestID == id {
			out = append(out, e.Status)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestOrchestrator(t *testing.T, synth Synthesizer, player Player, c *collector, extra func(*Options)) *Orchestrator {
	t.Helper()
	opts := Options{Synthesizer: synth, Player: player, Listener: c.listener(), Language: "en"}
	if extra != nil {
		extra(&opts)
	}
	o, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o.Start()
	t.Cleanup(o.Close)
	return o
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNew_RequiresSynthesizerAndPlayer(t *testing.T) {
	if _, err := New(Options{Player: newStubPlayer()}); err == nil {
		t.Error("expected error without synthesizer")
	}
	if _, err := New(Options{Synthesizer: newStubSynth(t)}); err == nil {
		t.Error("expected error without player")
	}
}

func TestOrchestrator_FIFOOrder(t *testing.T) {
	synth := newStubSynth(t)
	c := &collector{}
	o := newTestOrchestrator(t, synth, newStubPlayer(), c, nil)

	for _, s := range []string{"a", "b", "c"} {
		if _, err := o.Enqueue(s); err != nil {
			t.Fatalf("Enqueue(%q): %v", s, err)
		}
	}
	waitFor(t, "three finished signals", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 3
	})

	ready, errs, finished := c.snapshot()
	if !equalStrings(finished, []string{"a", "b", "c"}) {
		t.Errorf("finished order = %v, want [a b c]", finished)
	}
	if !equalStrings(ready, []string{"a", "b", "c"}) {
		t.Errorf("ready order = %v, want [a b c]", ready)
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	waitFor(t, "idle", func() bool { return o.State() == StateIdle })
	for _, p := range synth.allPaths() {
		if fileExists(p) {
			t.Errorf("artifact %s not removed after playback", p)
		}
	}
}

func TestOrchestrator_StopTwiceFromIdleIsNoop(t *testing.T) {
	o := newTestOrchestrator(t, newStubSynth(t), newStubPlayer(), &collector{}, nil)
	changes := 0
	o.OnStateChange(func(from, to State) { changes++ })

	o.Stop()
	o.Stop()

	if o.State() != StateIdle {
		t.Errorf("state = %s, want Idle", o.State())
	}
	if changes != 0 {
		t.Errorf("expected no state changes, got %d", changes)
	}
}

func TestOrchestrator_StateSequence(t *testing.T) {
	c := &collector{}
	o := newTestOrchestrator(t, newStubSynth(t), newStubPlayer(), c, nil)

	var mu sync.Mutex
	var seq []State
	o.OnStateChange(func(from, to State) {
		mu.Lock()
		seq = append(seq, to)
		mu.Unlock()
	})

	if _, err := o.Enqueue("a"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 1
	})
	waitFor(t, "idle", func() bool { return o.State() == StateIdle })

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateSynthesizing, StateArtifactReady, StatePlaying, StateIdle}
	if len(seq) != len(want) {
		t.Fatalf("states = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("state %d = %s, want %s", i, seq[i], want[i])
		}
	}
}

func TestOrchestrator_StopDiscardsInFlightSynthesis(t *testing.T) {
	synth := newStubSynth(t)
	gate := make(chan struct{})
	synth.gate["a"] = gate
	player := newStubPlayer()
	c := &collector{}
	rec := &memRecorder{}
	o := newTestOrchestrator(t, synth, player, c, func(opts *Options) { opts.Recorder = rec })

	reqA, _ := o.Enqueue("a")
	reqB, _ := o.Enqueue("b")
	waitFor(t, "synthesis started", func() bool {
		started, _ := synth.count()
		return started == 1
	})

	o.Stop()
	if o.State() != StateIdle {
		t.Fatalf("state right after Stop = %s, want Idle", o.State())
	}
	if s, p := o.Pending(); s != 0 || p != 0 {
		t.Fatalf("pending after Stop = (%d, %d), want (0, 0)", s, p)
	}

	close(gate)
	waitFor(t, "in-flight synthesis to finish", func() bool {
		_, done := synth.count()
		return done == 1
	})
	waitFor(t, "stale artifact removed", func() bool {
		paths := synth.allPaths()
		return len(paths) == 1 && !fileExists(paths[0])
	})
	waitFor(t, "cancel recorded", func() bool {
		st := rec.statuses(reqA.ID)
		return len(st) > 0 && st[len(st)-1] == history.StatusCancelled
	})

	ready, errs, finished := c.snapshot()
	if len(ready) != 0 || len(errs) != 0 || len(finished) != 0 {
		t.Errorf("stale work leaked signals: ready=%v errs=%v finished=%v", ready, errs, finished)
	}
	if calls := player.calls(); len(calls) != 0 {
		t.Errorf("player called for discarded work: %v", calls)
	}
	if started, _ := synth.count(); started != 1 {
		t.Errorf("queued request b was synthesized after Stop")
	}
	if st := rec.statuses(reqB.ID); len(st) != 2 || st[1] != history.StatusCancelled {
		t.Errorf("b statuses = %v, want [queued cancelled]", st)
	}
	if o.State() != StateIdle {
		t.Errorf("state = %s, want Idle", o.State())
	}
}

func TestOrchestrator_SynthesisErrorDropsSegment(t *testing.T) {
	synth := newStubSynth(t)
	synth.fail["b"] = errors.New("backend unavailable")
	c := &collector{}
	o := newTestOrchestrator(t, synth, newStubPlayer(), c, nil)

	for _, s := range []string{"a", "b", "c"} {
		o.Enqueue(s)
	}
	waitFor(t, "two finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 2
	})

	_, errs, finished := c.snapshot()
	if !equalStrings(finished, []string{"a", "c"}) {
		t.Errorf("finished = %v, want [a c]", finished)
	}
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	var se *SynthesisError
	if !errors.As(errs[0], &se) || se.Request.Text != "b" {
		t.Errorf("expected SynthesisError for b, got %v", errs[0])
	}
	if started, _ := synth.count(); started != 3 {
		t.Errorf("synthesize calls = %d, failed segment must not be retried", started)
	}
}

func TestOrchestrator_PlaybackErrorAdvancesQueue(t *testing.T) {
	synth := newStubSynth(t)
	player := newStubPlayer()
	player.fail["a"] = errors.New("device lost")
	c := &collector{}
	o := newTestOrchestrator(t, synth, player, c, nil)

	o.Enqueue("a")
	o.Enqueue("b")
	waitFor(t, "two finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 2
	})

	_, errs, finished := c.snapshot()
	if !equalStrings(finished, []string{"a", "b"}) {
		t.Errorf("finished = %v, want [a b]", finished)
	}
	var pe *PlaybackError
	if len(errs) != 1 || !errors.As(errs[0], &pe) || pe.Request.Text != "a" {
		t.Errorf("expected one PlaybackError for a, got %v", errs)
	}
	for _, p := range synth.allPaths() {
		if fileExists(p) {
			t.Errorf("artifact %s not removed", p)
		}
	}
	waitFor(t, "idle", func() bool { return o.State() == StateIdle })
}

type vanishingSynth struct{ *stubSynth }

func (v vanishingSynth) Synthesize(ctx context.Context, req Request) (*Artifact, error) {
	art, err := v.stubSynth.Synthesize(ctx, req)
	if err == nil {
		os.Remove(art.Path)
	}
	return art, err
}

func TestOrchestrator_MissingArtifactIsPlaybackError(t *testing.T) {
	player := newStubPlayer()
	c := &collector{}
	newTestOrchestrator(t, vanishingSynth{newStubSynth(t)}, player, c, nil).Enqueue("a")

	waitFor(t, "finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 1
	})
	_, errs, _ := c.snapshot()
	if len(errs) != 1 || !errors.Is(errs[0], ErrArtifactMissing) {
		t.Errorf("expected ErrArtifactMissing, got %v", errs)
	}
	if calls := player.calls(); len(calls) != 0 {
		t.Errorf("player should not be called for a missing file, got %v", calls)
	}
}

func TestOrchestrator_ReadyArtifactWaitsForCurrentPlayback(t *testing.T) {
	player := newStubPlayer()
	release := make(chan struct{})
	player.block["a"] = release
	c := &collector{}
	o := newTestOrchestrator(t, newStubSynth(t), player, c, nil)

	o.Enqueue("a")
	o.Enqueue("b")
	waitFor(t, "b ready", func() bool {
		r, _, _ := c.snapshot()
		return len(r) == 2
	})

	if calls := player.calls(); !equalStrings(calls, []string{"a"}) {
		t.Fatalf("player calls while a is playing = %v, want [a]", calls)
	}
	if o.State() != StatePlaying {
		t.Errorf("state = %s, want Playing", o.State())
	}
	if _, p := o.Pending(); p != 1 {
		t.Errorf("pending playback = %d, want 1", p)
	}

	close(release)
	waitFor(t, "both finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 2
	})
	if calls := player.calls(); !equalStrings(calls, []string{"a", "b"}) {
		t.Errorf("player calls = %v, want [a b]", calls)
	}
}

func TestOrchestrator_StopInterruptsPlayback(t *testing.T) {
	synth := newStubSynth(t)
	player := newStubPlayer()
	player.block["a"] = make(chan struct{}) // 只会被 ctx 取消
	c := &collector{}
	vis := &stubVisualizer{}
	o := newTestOrchestrator(t, synth, player, c, func(opts *Options) { opts.Visualizer = vis })

	o.Enqueue("a")
	o.Enqueue("b")
	waitFor(t, "playing", func() bool { return o.State() == StatePlaying })

	o.Stop()
	if o.State() != StateIdle {
		t.Fatalf("state right after Stop = %s, want Idle", o.State())
	}
	waitFor(t, "visualizer ended", func() bool {
		_, ends := vis.counts()
		return ends == 1
	})
	waitFor(t, "artifacts removed", func() bool {
		for _, p := range synth.allPaths() {
			if fileExists(p) {
				return false
			}
		}
		return true
	})

	_, errs, finished := c.snapshot()
	if len(errs) != 0 || len(finished) != 0 {
		t.Errorf("cancelled playback must be silent: errs=%v finished=%v", errs, finished)
	}
	if calls := player.calls(); !equalStrings(calls, []string{"a"}) {
		t.Errorf("player calls = %v, want [a]", calls)
	}

	// 停止后可以继续使用
	o.Enqueue("c")
	waitFor(t, "c finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 1 && f[0] == "c"
	})
}

func TestOrchestrator_EnqueueErrors(t *testing.T) {
	o := newTestOrchestrator(t, newStubSynth(t), newStubPlayer(), &collector{}, nil)
	if _, err := o.Enqueue("  »« \n"); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
	o.Close()
	if _, err := o.Enqueue("hello"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestOrchestrator_EnqueueCleansText(t *testing.T) {
	synth := newStubSynth(t)
	c := &collector{}
	o := newTestOrchestrator(t, synth, newStubPlayer(), c, nil)
	req, err := o.Enqueue("  5 $ &  more ")
	if err != nil {
		t.Fatal(err)
	}
	if req.Text != "5 dollar and more" {
		t.Errorf("cleaned text = %q", req.Text)
	}
}

func TestOrchestrator_EnqueueReplySegments(t *testing.T) {
	c := &collector{}
	o := newTestOrchestrator(t, newStubSynth(t), newStubPlayer(), c, func(opts *Options) { opts.MaxSegmentChars = 12 })

	reqs, err := o.EnqueueReply("One two. Three four. Five.")
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 3 {
		t.Fatalf("segments = %d, want 3", len(reqs))
	}
	waitFor(t, "all finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 3
	})
	_, _, finished := c.snapshot()
	if !equalStrings(finished, []string{"One two.", "Three four.", "Five."}) {
		t.Errorf("finished = %v", finished)
	}

	if _, err := o.EnqueueReply(" \n "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText for blank reply, got %v", err)
	}
}

func TestOrchestrator_RecordsLifecycle(t *testing.T) {
	rec := &memRecorder{}
	c := &collector{}
	o := newTestOrchestrator(t, newStubSynth(t), newStubPlayer(), c, func(opts *Options) { opts.Recorder = rec })

	req, _ := o.Enqueue("a")
	waitFor(t, "played recorded", func() bool {
		st := rec.statuses(req.ID)
		return len(st) == 3
	})
	st := rec.statuses(req.ID)
	want := []history.Status{history.StatusQueued, history.StatusReady, history.StatusPlayed}
	for i := range want {
		if st[i] != want[i] {
			t.Errorf("status %d = %s, want %s", i, st[i], want[i])
		}
	}
}

func TestOrchestrator_DecodesWaveformBeforePlayback(t *testing.T) {
	dir := t.TempDir()
	synth := SynthesizerFunc(func(ctx context.Context, req Request) (*Artifact, error) {
		path := filepath.Join(dir, req.ID+".wav")
		if err := writeWAV(path, []float32{0, 0.25, -0.25, 0}, 8000); err != nil {
			return nil, err
		}
		return &Artifact{Request: req, Path: path, Engine: "func"}, nil
	})
	var got *audio.Waveform
	player := PlayerFunc(func(ctx context.Context, art *Artifact, started func()) error {
		started()
		got = art.Waveform
		return nil
	})
	c := &collector{}
	o := newTestOrchestrator(t, synth, player, c, func(opts *Options) {
		opts.Decoder = audio.NewDecoder(audio.DecoderConfig{DisableTranscode: true})
	})

	o.Enqueue("a")
	waitFor(t, "finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 1
	})
	if got == nil || got.Len() != 4 || got.SampleRate() != 8000 {
		t.Fatalf("player did not receive decoded waveform: %+v", got)
	}
}

type failDecoder struct{}

func (failDecoder) DecodeFile(ctx context.Context, path string) (*audio.Waveform, error) {
	return nil, &audio.DecodeError{Path: path, Reason: audio.ErrUnsupportedBitDepth}
}

// fakeDevice 记录 DevicePlayer 交给设备的波形。
type fakeDevice struct {
	mu      sync.Mutex
	samples []int
}

func (d *fakeDevice) Play(ctx context.Context, wf *audio.Waveform, started func()) error {
	if started != nil {
		started()
	}
	d.mu.Lock()
	d.samples = append(d.samples, wf.Len())
	d.mu.Unlock()
	return nil
}

func TestOrchestrator_DecodeFailureStillPlaysAudio(t *testing.T) {
	dir := t.TempDir()
	synth := SynthesizerFunc(func(ctx context.Context, req Request) (*Artifact, error) {
		path := filepath.Join(dir, req.ID+".wav")
		if err := writeWAV(path, []float32{0, 0.25, -0.25, 0.5, 0}, 16000); err != nil {
			return nil, err
		}
		return &Artifact{Request: req, Path: path, Engine: "func"}, nil
	})
	device := &fakeDevice{}
	vis := &stubVisualizer{}
	c := &collector{}
	o := newTestOrchestrator(t, synth, newDevicePlayer(device), c, func(opts *Options) {
		opts.Decoder = failDecoder{}
		opts.Visualizer = vis
	})

	o.Enqueue("a")
	waitFor(t, "finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 1
	})

	_, errs, _ := c.snapshot()
	if len(errs) != 0 {
		t.Fatalf("decode failure must not fail playback, got %v", errs)
	}
	device.mu.Lock()
	played := append([]int(nil), device.samples...)
	device.mu.Unlock()
	if len(played) != 1 || played[0] != 5 {
		t.Errorf("device received %v samples, want [5]", played)
	}

	begins, _ := vis.counts()
	vis.mu.Lock()
	last := vis.last
	vis.mu.Unlock()
	if begins != 1 || last != nil {
		t.Errorf("visualizer should begin once in idle mode, begins=%d wf=%v", begins, last)
	}
}

func TestDevicePlayer_UnreadableArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	os.WriteFile(path, []byte("not audio at all, definitely not a wav file header"), 0o644)

	device := &fakeDevice{}
	err := newDevicePlayer(device).Play(context.Background(), &Artifact{Path: path}, func() {})
	if err == nil {
		t.Fatal("expected error for unreadable artifact")
	}
	if len(device.samples) != 0 {
		t.Error("device should not be started for unreadable audio")
	}
}

func TestOrchestrator_VisualizerWaitsForDeviceStart(t *testing.T) {
	player := newStubPlayer()
	player.fail["a"] = errors.New("device busy")
	vis := &stubVisualizer{}
	c := &collector{}
	o := newTestOrchestrator(t, newStubSynth(t), player, c, func(opts *Options) { opts.Visualizer = vis })

	o.Enqueue("a")
	o.Enqueue("b")
	waitFor(t, "both finished", func() bool {
		_, _, f := c.snapshot()
		return len(f) == 2
	})
	waitFor(t, "both sessions ended", func() bool {
		_, ends := vis.counts()
		return ends == 2
	})

	// a 的设备从未启动，只有 b 开始了可视化
	if begins, _ := vis.counts(); begins != 1 {
		t.Errorf("visualizer begins = %d, want 1", begins)
	}
}
