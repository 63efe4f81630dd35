package service

import (
	"sync"
	"time"
)

const (
	segmentButtonText   = "Auto Segment"
	segmentButtonSuffix = "ing..."
	typingDelay         = 60 * time.Millisecond
	untypingDelay       = 66 * time.Millisecond
)

// TypingFrames 逐字追加 suffix 的帧序列
func TypingFrames(base, suffix string) []string {
	runes := []rune(suffix)
	frames := make([]string, 0, len(runes))
	for i := 1; i <= len(runes); i++ {
		frames = append(frames, base+string(runes[:i]))
	}
	return frames
}

// UntypingFrames 从完整文本逐字删除 suffix 的帧序列，最后一帧为 base
func UntypingFrames(base, suffix string) []string {
	runes := []rune(suffix)
	frames := make([]string, 0, len(runes))
	for i := len(runes) - 1; i >= 0; i-- {
		frames = append(frames, base+string(runes[:i]))
	}
	return frames
}

// TypingIndicator 分割进行中的文字动画，只负责展示，不影响分割流程
type TypingIndicator struct {
	publish func(frame string)
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewTypingIndicator(publish func(frame string)) *TypingIndicator {
	return &TypingIndicator{
		publish: publish,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start 开始播放输入动画
func (t *TypingIndicator) Start() {
	go func() {
		defer close(t.done)
		t.play(TypingFrames(segmentButtonText, segmentButtonSuffix), typingDelay, t.stop)
		<-t.stop
		t.play(UntypingFrames(segmentButtonText, segmentButtonSuffix), untypingDelay, nil)
	}()
}

// Stop 开始播放删除动画并立即返回
func (t *TypingIndicator) Stop() {
	t.once.Do(func() { close(t.stop) })
}

// Done 动画全部结束
func (t *TypingIndicator) Done() <-chan struct{} {
	return t.done
}

func (t *TypingIndicator) play(frames []string, delay time.Duration, interrupt <-chan struct{}) {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for _, frame := range frames {
		select {
		case <-ticker.C:
		case <-interrupt:
			return
		}
		if t.publish != nil {
			t.publish(frame)
		}
	}
}
