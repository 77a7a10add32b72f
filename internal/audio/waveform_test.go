package audio

import (
	"testing"
	"time"
)

func TestNewWaveform_RejectsBadRate(t *testing.T) {
	if _, err := NewWaveform([]float32{0}, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestWaveform_Duration(t *testing.T) {
	wf, err := NewWaveform(make([]float32, 8000), 16000)
	if err != nil {
		t.Fatal(err)
	}
	if got := wf.Duration(); got != 500*time.Millisecond {
		t.Errorf("duration: got %v, want 500ms", got)
	}
}

func TestWaveform_Window(t *testing.T) {
	wf, _ := NewWaveform([]float32{0, 1, 2, 3, 4}, 10)

	if got := wf.Window(1, 2); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Window(1,2) = %v", got)
	}
	if got := wf.Window(3, 10); len(got) != 2 {
		t.Errorf("Window(3,10) should be clipped to 2 samples, got %d", len(got))
	}
	if got := wf.Window(5, 1); got != nil {
		t.Errorf("Window past end should be nil, got %v", got)
	}
	if got := wf.Window(-1, 1); got != nil {
		t.Errorf("Window with negative offset should be nil, got %v", got)
	}

	w := wf.Window(0, 2)
	w = append(w, 99)
	if wf.Samples()[2] != 2 {
		t.Error("append on window must not overwrite waveform samples")
	}
}

func TestWaveform_SamplesIsCopy(t *testing.T) {
	wf, _ := NewWaveform([]float32{1, 2}, 10)
	s := wf.Samples()
	s[0] = 42
	if wf.Samples()[0] != 1 {
		t.Error("Samples must return a copy")
	}
}
