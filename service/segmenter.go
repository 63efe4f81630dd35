package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// PhaseListener 分割状态变化回调
type PhaseListener func(key string, prev, next model.SegmentPhase)

// Segmenter 自动分割流程：idle → requesting → success|failure → idle
type Segmenter struct {
	catalog *Catalog
	backend MaskBackend
	cache   *MaskCache
	run     *runner

	mu        sync.RWMutex
	settings  model.Settings
	listeners []PhaseListener
	onFrame   func(key, frame string)
}

func NewSegmenter(catalog *Catalog, backend MaskBackend, cache *MaskCache, run *runner, settings model.Settings) *Segmenter {
	if !settings.Valid() {
		settings = model.Settings{Model: model.MaxModelSetting, ContourFidelity: model.MaxContourFidelitySetting}
	}
	return &Segmenter{
		catalog:  catalog,
		backend:  backend,
		cache:    cache,
		run:      run,
		settings: settings,
	}
}

// Settings 当前会话级参数
func (s *Segmenter) Settings() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings 更新会话级参数
func (s *Segmenter) SetSettings(settings model.Settings) error {
	if !settings.Valid() {
		return ErrInvalidSettings
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// OnPhase 注册状态变化监听
func (s *Segmenter) OnPhase(l PhaseListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// OnFrame 设置进度动画的帧输出
func (s *Segmenter) OnFrame(fn func(key, frame string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = fn
}

// Segment 对当前图片的选中标注词发起分割，进行中再次调用会被拒绝
func (s *Segmenter) Segment() (*Pending, error) {
	settings := s.Settings()

	var req model.SegmentRequest
	var oldMask *model.MaskRecord
	_, err := s.catalog.UpdateSelected(func(img *model.Image, _ *model.Tool) error {
		if img.Busy() {
			return ErrSegmentationBusy
		}
		if img.Hash == "" {
			return ErrNotUploaded
		}
		if img.SelectedWord == "" {
			return ErrNoWordSelected
		}
		if !img.Prompts.CanSegment() {
			return ErrNotSegmentable
		}
		if i := img.IndexOf(img.SelectedWord); i >= 0 {
			oldMask = img.Entries[i].Mask
		}
		req = model.SegmentRequest{
			FileHash: img.Hash,
			Word:     img.SelectedWord,
			Prompts:  img.Prompts,
			Settings: settings,
		}
		img.Segment = model.SegmentRequesting
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(req.FileHash, model.SegmentIdle, model.SegmentRequesting)

	utils.Logger.Info("segmentation requested",
		zap.String("file_hash", req.FileHash),
		zap.String("word", req.Word),
		zap.Int("inclusion_points", len(req.Prompts.Inclusion)),
		zap.Int("exclusion_points", len(req.Prompts.Exclusion)),
		zap.Int("bounding_boxes", len(req.Prompts.Boxes)),
		zap.Int("model", settings.Model),
		zap.Int("contour_fidelity", settings.ContourFidelity))

	indicator := NewTypingIndicator(s.framePublisher(req.FileHash))
	indicator.Start()

	return s.run.start("segment", func(ctx context.Context) error {
		defer indicator.Stop()

		mask, err := s.request(ctx, req, oldMask)
		if err != nil {
			s.finish(req.FileHash, model.SegmentFailure)
			return err
		}
		return s.apply(ctx, req, oldMask, mask)
	}), nil
}

func (s *Segmenter) request(ctx context.Context, req model.SegmentRequest, oldMask *model.MaskRecord) (*model.MaskRecord, error) {
	if oldMask != nil {
		// 旧掩码删除失败不影响新的分割
		if err := s.backend.DeleteMask(ctx, req.FileHash, req.Word); err != nil {
			utils.Logger.Warn("failed to delete previous mask",
				zap.String("file_hash", req.FileHash), zap.String("word", req.Word), zap.Error(err))
		}
	}

	if err := s.backend.RequestSegmentation(ctx, req); err != nil {
		return nil, backendError("request segmentation", err)
	}

	masks, err := s.backend.FetchMasks(ctx, req.FileHash, req.Word)
	if err != nil {
		return nil, backendError("fetch masks", err)
	}
	if len(masks) == 0 {
		return nil, fmt.Errorf("%w: no mask returned for %q", ErrBackendRejected, req.Word)
	}
	mask := masks[0]
	return &mask, nil
}

// apply 按哈希和标注词写回结果，不依赖当前选中项
func (s *Segmenter) apply(ctx context.Context, req model.SegmentRequest, oldMask, mask *model.MaskRecord) error {
	_, err := s.catalog.Update(req.FileHash, func(img *model.Image) error {
		i := img.IndexOf(req.Word)
		if i < 0 {
			return ErrWordNotFound
		}
		img.Entries[i].Mask = mask
		img.Prompts = img.Prompts.Cleared()
		img.Segment = model.SegmentSuccess
		return nil
	})
	if err != nil {
		utils.Logger.Warn("segmentation result dropped",
			zap.String("file_hash", req.FileHash), zap.String("word", req.Word), zap.Error(err))
		if !errors.Is(err, ErrImageNotFound) {
			s.finish(req.FileHash, model.SegmentFailure)
		}
		return err
	}
	s.notify(req.FileHash, model.SegmentRequesting, model.SegmentSuccess)
	s.setPhase(req.FileHash, model.SegmentSuccess, model.SegmentIdle)

	if oldMask != nil && oldMask.UUID != mask.UUID {
		if err := s.cache.Invalidate(ctx, req.FileHash, oldMask.UUID); err != nil {
			utils.Logger.Warn("failed to invalidate mask cache", zap.Error(err))
		}
	}

	utils.Logger.Info("segmentation finished",
		zap.String("file_hash", req.FileHash),
		zap.String("word", req.Word),
		zap.String("mask_uuid", mask.UUID))
	return nil
}

// finish 失败路径：requesting → failure → idle，掩码与提示数据保持不变
func (s *Segmenter) finish(key string, phase model.SegmentPhase) {
	s.setPhase(key, model.SegmentRequesting, phase)
	s.setPhase(key, phase, model.SegmentIdle)
}

func (s *Segmenter) setPhase(key string, prev, next model.SegmentPhase) {
	_, err := s.catalog.Update(key, func(img *model.Image) error {
		img.Segment = next
		return nil
	})
	if err != nil {
		return
	}
	s.notify(key, prev, next)
}

func (s *Segmenter) notify(key string, prev, next model.SegmentPhase) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()

	utils.Logger.Debug("segmentation phase",
		zap.String("image", key),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
	for _, l := range listeners {
		l(key, prev, next)
	}
}

func (s *Segmenter) framePublisher(key string) func(string) {
	s.mu.RLock()
	onFrame := s.onFrame
	s.mu.RUnlock()
	if onFrame == nil {
		return nil
	}
	return func(frame string) { onFrame(key, frame) }
}
