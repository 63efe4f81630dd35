package service

import (
	"context"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// Workspace 组合标注工作区的全部组件，所有组件共享同一个 Catalog
type Workspace struct {
	Catalog   *Catalog
	Images    *Images
	Ledger    *Ledger
	Canvas    *Canvas
	Segmenter *Segmenter
	Exporter  *Exporter
	Hub       *Hub

	cache  *MaskCache
	run    *runner
	cancel context.CancelFunc
}

// NewWorkspace 创建工作区；cache 可以为 nil，tracer 为 nil 时轮廓只从后端获取
func NewWorkspace(cfg *config.Config, backend Backend, cache *MaskCache, tracer ContourTracer) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())

	catalog := NewCatalog()
	run := newRunner(ctx, cfg.Backend.Timeout)
	hub := NewHub()

	segmenter := NewSegmenter(catalog, backend, cache, run, model.Settings{
		Model:           cfg.Segment.Model,
		ContourFidelity: cfg.Segment.ContourFidelity,
	})
	fidelity := func() int { return segmenter.Settings().ContourFidelity }

	w := &Workspace{
		Catalog:   catalog,
		Images:    NewImages(catalog, backend, &cfg.Upload, run),
		Ledger:    NewLedger(catalog, backend, cache, run),
		Canvas:    NewCanvas(catalog, cfg.Canvas.EraseDelay),
		Segmenter: segmenter,
		Exporter:  NewExporter(catalog, backend, cache, tracer, fidelity, cfg.Export.MaxConcurrentFetch),
		Hub:       hub,
		cache:     cache,
		run:       run,
		cancel:    cancel,
	}

	catalog.Subscribe(func(s Snapshot) {
		hub.Publish(EventCatalog, s)
	})
	segmenter.OnFrame(func(key, frame string) {
		hub.Publish(EventIndicator, IndicatorFrame{Image: key, Text: frame})
	})
	segmenter.OnPhase(func(key string, prev, next model.SegmentPhase) {
		hub.Publish(EventPhase, PhaseChange{Image: key, From: prev, To: next})
	})

	go hub.Run(ctx)
	return w
}

// Close 取消后台任务并等待其结束
func (w *Workspace) Close() error {
	w.cancel()
	w.run.wait()
	if err := w.cache.Close(); err != nil {
		utils.Logger.Warn("failed to close mask cache", zap.Error(err))
		return err
	}
	return nil
}
