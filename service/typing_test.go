package service

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestTypingFrames(t *testing.T) {
	got := TypingFrames("Auto Segment", "ing...")
	want := []string{
		"Auto Segmenti",
		"Auto Segmentin",
		"Auto Segmenting",
		"Auto Segmenting.",
		"Auto Segmenting..",
		"Auto Segmenting...",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TypingFrames = %q, want %q", got, want)
	}
}

func TestUntypingFramesEndAtBase(t *testing.T) {
	got := UntypingFrames("Auto Segment", "ing...")
	if len(got) != 6 {
		t.Fatalf("expected 6 frames, got %d", len(got))
	}
	if got[0] != "Auto Segmenting.." || got[len(got)-1] != "Auto Segment" {
		t.Errorf("unexpected frames: %q", got)
	}
}

func TestTypingIndicatorSettlesOnBaseText(t *testing.T) {
	var mu sync.Mutex
	var frames []string
	indicator := NewTypingIndicator(func(frame string) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, frame)
	})

	indicator.Start()
	indicator.Stop()
	indicator.Stop()

	select {
	case <-indicator.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("indicator did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) == 0 || frames[len(frames)-1] != segmentButtonText {
		t.Errorf("expected last frame %q, got %q", segmentButtonText, frames)
	}
}
