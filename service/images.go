package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/TIANLI0/MaskKit/client"
	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// UploadFile 待上传的图片
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Images 图片目录与后端之间的同步
type Images struct {
	catalog *Catalog
	backend ImageBackend
	cfg     *config.UploadConfig
	run     *runner
}

func NewImages(catalog *Catalog, backend ImageBackend, cfg *config.UploadConfig, run *runner) *Images {
	return &Images{
		catalog: catalog,
		backend: backend,
		cfg:     cfg,
		run:     run,
	}
}

// AddImage 乐观添加图片：先插入占位记录并选中，上传结果在占位提交后合并
func (s *Images) AddImage(file UploadFile) (*Pending, error) {
	if !s.isAllowedType(file.ContentType) {
		return nil, ErrInvalidFileType
	}
	if s.cfg.MaxSize > 0 && int64(len(file.Data)) > s.cfg.MaxSize {
		return nil, ErrFileTooLarge
	}

	localID := utils.GenerateLocalID()
	ready := newGate()

	utils.Logger.Info("uploading image",
		zap.String("name", file.Name),
		zap.String("local_id", localID),
		zap.String("size", humanize.Bytes(uint64(len(file.Data)))))

	pending := s.run.start("upload image", func(ctx context.Context) error {
		return s.upload(ctx, localID, file, ready)
	})

	s.catalog.Insert(model.Image{
		LocalID: localID,
		Src:     DataURL(file.ContentType, file.Data),
		Name:    file.Name,
		Status:  model.StatusUploading,
		Segment: model.SegmentIdle,
	})
	ready.open()

	s.run.start("decode preview", func(ctx context.Context) error {
		return s.decodePreview(localID, file.Data)
	})

	return pending, nil
}

func (s *Images) upload(ctx context.Context, localID string, file UploadFile, ready *gate) error {
	result, err := s.backend.UploadImage(ctx, file.Name, file.ContentType, file.Data)

	if !ready.wait(ctx, s.readyTimeout()) {
		utils.Logger.Error("placeholder was not committed before upload completed",
			zap.String("local_id", localID),
			zap.Duration("timeout", s.readyTimeout()))
	}

	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Duplicate() {
			s.catalog.RemoveRejected(localID)
			utils.Logger.Info("duplicate upload rejected", zap.String("name", file.Name))
			return ErrDuplicateUpload
		}
		if _, uerr := s.catalog.Update(localID, func(img *model.Image) error {
			img.Status = model.StatusPendingLocal
			return nil
		}); uerr != nil {
			utils.Logger.Warn("failed to mark image as local only", zap.String("local_id", localID), zap.Error(uerr))
		}
		return backendError("upload image", err)
	}

	if _, err := s.catalog.AssignHash(localID, result.FileHash, result.ImageLocation); err != nil {
		if errors.Is(err, ErrDuplicateUpload) {
			s.catalog.RemoveRejected(localID)
		}
		return err
	}

	utils.Logger.Info("image uploaded",
		zap.String("name", file.Name),
		zap.String("file_hash", result.FileHash))
	return nil
}

func (s *Images) decodePreview(localID string, data []byte) error {
	width, height, err := DecodeDimensions(data)
	if err != nil {
		return err
	}
	_, err = s.catalog.Update(localID, func(img *model.Image) error {
		img.Width = width
		img.Height = height
		return nil
	})
	if errors.Is(err, ErrImageNotFound) {
		// 图片已被删除或拒绝
		return nil
	}
	return err
}

// SelectImage 选中图片并通知后端（失败只记录日志）
func (s *Images) SelectImage(index int) (model.Image, error) {
	img, err := s.catalog.Select(index)
	if err != nil {
		return img, err
	}

	if img.Hash != "" {
		hash := img.Hash
		s.run.start("select image", func(ctx context.Context) error {
			if err := s.backend.SelectImage(ctx, hash); err != nil {
				utils.Logger.Warn("failed to notify selected image", zap.String("file_hash", hash), zap.Error(err))
			}
			return nil
		})
	}
	return img, nil
}

// DeleteImage 后端确认后才从目录中移除
func (s *Images) DeleteImage(index int) (*Pending, error) {
	img, ok := s.catalog.At(index)
	if !ok {
		return nil, ErrImageNotFound
	}

	if img.Hash == "" {
		if img.Status == model.StatusUploading {
			return nil, ErrNotUploaded
		}
		s.catalog.Remove(img.LocalID)
		return settled(nil), nil
	}

	hash := img.Hash
	return s.run.start("delete image", func(ctx context.Context) error {
		if err := s.backend.DeleteImage(ctx, hash); err != nil {
			return backendError("delete image", err)
		}
		s.catalog.Remove(hash)
		utils.Logger.Info("image deleted", zap.String("file_hash", hash))
		return nil
	}), nil
}

// Refresh 用后端的图片列表整体替换目录
func (s *Images) Refresh(ctx context.Context) error {
	remote, err := s.backend.ListImages(ctx)
	if err != nil {
		return backendError("list images", err)
	}

	images := make([]model.Image, 0, len(remote))
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		if seen[r.FileHash] {
			utils.Logger.Warn("skipping duplicate image hash", zap.String("file_hash", r.FileHash))
			continue
		}
		seen[r.FileHash] = true

		words, err := s.backend.ListWords(ctx, r.FileHash)
		if err != nil {
			return backendError("list words", err)
		}
		entries, err := alignEntries(words, r.WordMasks)
		if err != nil {
			utils.Logger.Error("mask alignment violated",
				zap.String("file_hash", r.FileHash), zap.Strings("words", words), zap.Error(err))
			return err
		}

		images = append(images, model.Image{
			LocalID: utils.GenerateLocalID(),
			Hash:    r.FileHash,
			Src:     r.File,
			Name:    r.Name,
			Status:  model.StatusUploaded,
			Entries: entries,
			Segment: model.SegmentIdle,
		})
	}

	selected := -1
	if len(images) > 0 {
		selected = 0
	}
	if name, err := s.backend.LastSelected(ctx); err != nil {
		utils.Logger.Warn("failed to get last selected image", zap.Error(err))
	} else if name != "" {
		for i, img := range images {
			if img.Name == name {
				selected = i
				break
			}
		}
	}

	s.catalog.Replace(images, selected)
	utils.Logger.Info("catalog refreshed", zap.Int("images", len(images)))
	return nil
}

// alignEntries 标注词按字典序排序后与同序的后端掩码逐一配对
func alignEntries(words []string, wordMasks []model.RemoteWordMask) ([]model.Annotation, error) {
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)

	masks := append([]model.RemoteWordMask(nil), wordMasks...)
	sort.SliceStable(masks, func(i, j int) bool { return masks[i].Word < masks[j].Word })

	if len(masks) != len(sorted) {
		return nil, ErrAlignmentViolation
	}

	slots := make([]*model.MaskRecord, len(masks))
	for i, wm := range masks {
		if wm.Word != sorted[i] {
			return nil, ErrAlignmentViolation
		}
		slots[i] = wm.FirstMask()
	}

	entries, ok := model.PairAnnotations(sorted, slots)
	if !ok {
		return nil, ErrAlignmentViolation
	}
	return entries, nil
}

func (s *Images) isAllowedType(contentType string) bool {
	// 去掉 "; charset=..." 之类的参数
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	for _, allowed := range s.cfg.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

func (s *Images) readyTimeout() time.Duration {
	if s.cfg.ReadyTimeout <= 0 {
		return 5 * time.Second
	}
	return s.cfg.ReadyTimeout
}
