package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/iabetor/sesli/internal/audio"
)

type fakeEngine struct {
	samples []float32
	rate    int
	err     error
}

func (f fakeEngine) Name() string { return "fake" }

func (f fakeEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	return f.samples, f.rate, f.err
}

func TestFileSynthesizer_WritesReadableWAV(t *testing.T) {
	dir := t.TempDir()
	samples := []float32{0, 0.5, -0.5, 0.25, 0}
	s := NewFileSynthesizer(fakeEngine{samples: samples, rate: 22050}, dir)

	req := Request{ID: "r1", Text: "merhaba"}
	art, err := s.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if art.Engine != "fake" || art.Request.ID != "r1" {
		t.Errorf("unexpected artifact: %+v", art)
	}
	if filepath.Dir(art.Path) != dir {
		t.Errorf("artifact written to %s, want dir %s", art.Path, dir)
	}
	if art.Waveform != nil {
		t.Error("waveform should be decoded lazily")
	}

	wf, err := audio.StrictWAV{}.Decode(art.Path)
	if err != nil {
		t.Fatalf("strict decode: %v", err)
	}
	if wf.SampleRate() != 22050 || wf.Len() != len(samples) {
		t.Errorf("decoded %d samples @ %d Hz", wf.Len(), wf.SampleRate())
	}
	got := wf.Samples()
	if d := got[1] - 0.5; d > 0.001 || d < -0.001 {
		t.Errorf("sample[1] = %f, want ~0.5", got[1])
	}

	art.Release()
	if fileExists(art.Path) {
		t.Error("Release should remove the file")
	}
}

func TestFileSynthesizer_EmptyAudio(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSynthesizer(fakeEngine{rate: 16000}, dir)

	_, err := s.Synthesize(context.Background(), Request{ID: "r2", Text: "x"})
	var se *SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SynthesisError, got %v", err)
	}
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
	if se.Engine != "fake" || se.Request.ID != "r2" {
		t.Errorf("unexpected error fields: %+v", se)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no file should be left behind, found %d", len(entries))
	}
}

func TestFileSynthesizer_EngineError(t *testing.T) {
	boom := errors.New("quota exceeded")
	s := NewFileSynthesizer(fakeEngine{err: boom}, t.TempDir())

	_, err := s.Synthesize(context.Background(), Request{ID: "r3", Text: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped engine error, got %v", err)
	}
	var se *SynthesisError
	if !errors.As(err, &se) {
		t.Errorf("expected *SynthesisError, got %T", err)
	}
}
