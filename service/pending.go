package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// Pending 后台操作句柄
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func settled(err error) *Pending {
	p := newPending()
	p.finish(err)
	return p
}

func (p *Pending) finish(err error) {
	p.err = err
	close(p.done)
}

// Done 操作结束时关闭
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err 未结束时返回 nil
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait 等待操作结束
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runner 在工作区的基础 context 上运行后台任务，不随请求取消
type runner struct {
	ctx     context.Context
	timeout time.Duration
	wg      sync.WaitGroup
}

func newRunner(ctx context.Context, timeout time.Duration) *runner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &runner{ctx: ctx, timeout: timeout}
}

func (r *runner) start(task string, fn func(ctx context.Context) error) *Pending {
	p := newPending()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var err error
		defer func() {
			if rec := recover(); rec != nil {
				utils.Logger.Error("background task panicked",
					zap.String("task", task), zap.Any("panic", rec))
				err = fmt.Errorf("%s: panic: %v", task, rec)
			}
			if err != nil {
				utils.Logger.Warn("background task failed",
					zap.String("task", task), zap.Error(err))
			}
			p.finish(err)
		}()

		ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
		defer cancel()
		err = fn(ctx)
	}()
	return p
}

// wait 等待全部后台任务结束
func (r *runner) wait() {
	r.wg.Wait()
}

// gate 一次性就绪信号
type gate struct {
	ch   chan struct{}
	once sync.Once
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

func (g *gate) open() {
	g.once.Do(func() { close(g.ch) })
}

// wait 等待信号，超时返回 false
func (g *gate) wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-g.ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
