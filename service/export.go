package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/TIANLI0/MaskKit/client"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Format 导出格式
type Format string

const (
	FormatContours Format = "contours"
	FormatRaster   Format = "raster"
)

const bundleName = "all-masks"

// Artifact 导出结果
type Artifact struct {
	Filename string
	MimeType string
	Data     []byte
}

// ContourTracer 从掩码 PNG 提取轮廓
type ContourTracer interface {
	Trace(data []byte, fidelity int) ([]model.Contour, error)
}

type selectedDocument struct {
	Label    string          `json:"label"`
	Contours []model.Contour `json:"contours"`
}

type bundleDocument struct {
	ImageID  string    `json:"image_id"`
	Segments []segment `json:"segments"`
}

type segment struct {
	Item     string          `json:"item"`
	Contours []model.Contour `json:"contours"`
}

// Exporter 掩码导出，只读取掩码数据
type Exporter struct {
	catalog       *Catalog
	backend       ExportBackend
	cache         *MaskCache
	tracer        ContourTracer
	fidelity      func() int
	maxConcurrent int
}

func NewExporter(catalog *Catalog, backend ExportBackend, cache *MaskCache, tracer ContourTracer, fidelity func() int, maxConcurrent int) *Exporter {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Exporter{
		catalog:       catalog,
		backend:       backend,
		cache:         cache,
		tracer:        tracer,
		fidelity:      fidelity,
		maxConcurrent: maxConcurrent,
	}
}

// ExportSelected 导出当前选中标注词的掩码
func (e *Exporter) ExportSelected(ctx context.Context, format Format) (*Artifact, error) {
	img, ok := e.catalog.Selected()
	if !ok || img.SelectedWord == "" {
		return nil, ErrNoMaskSelected
	}
	i := img.IndexOf(img.SelectedWord)
	if i < 0 || img.Entries[i].Mask == nil {
		return nil, ErrNoMaskSelected
	}
	entry := img.Entries[i]
	filename := fileStem(entry.Word) + "-mask"

	switch format {
	case FormatContours:
		doc, err := e.contours(ctx, img.Hash, entry)
		if err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(selectedDocument{Label: entry.Word, Contours: doc.Contours}, "", "  ")
		if err != nil {
			return nil, err
		}
		return &Artifact{Filename: filename + ".json", MimeType: "application/json", Data: data}, nil
	case FormatRaster:
		data, err := e.raster(ctx, img.Hash, entry.Mask)
		if err != nil {
			return nil, err
		}
		return &Artifact{Filename: filename + ".png", MimeType: "image/png", Data: data}, nil
	default:
		return nil, ErrInvalidFormat
	}
}

// ExportAll 导出当前图片的全部掩码；PNG 打包时任一下载失败则整体失败
func (e *Exporter) ExportAll(ctx context.Context, format Format) (*Artifact, error) {
	if format != FormatContours && format != FormatRaster {
		return nil, ErrInvalidFormat
	}
	img, ok := e.catalog.Selected()
	if !ok || !img.HasMasks() {
		return nil, ErrNoMasksAvailable
	}

	var entries []model.Annotation
	for _, entry := range img.Entries {
		if entry.Mask != nil {
			entries = append(entries, entry)
		}
	}

	if format == FormatContours {
		return e.exportContours(ctx, img, entries)
	}
	return e.exportRasters(ctx, img, entries)
}

func (e *Exporter) exportContours(ctx context.Context, img model.Image, entries []model.Annotation) (*Artifact, error) {
	doc := bundleDocument{ImageID: img.Name, Segments: make([]segment, 0, len(entries))}
	for _, entry := range entries {
		contours, err := e.contours(ctx, img.Hash, entry)
		if err != nil {
			return nil, err
		}
		// 标签取掩码自身保存的值，编辑进行中时账本可能暂时不同
		item := contours.Label
		if item == "" {
			item = entry.Word
		}
		doc.Segments = append(doc.Segments, segment{Item: item, Contours: contours.Contours})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return &Artifact{Filename: bundleName + ".json", MimeType: "application/json", Data: data}, nil
}

func (e *Exporter) exportRasters(ctx context.Context, img model.Image, entries []model.Annotation) (*Artifact, error) {
	rasters := make([][]byte, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			data, err := e.raster(gctx, img.Hash, entry.Mask)
			if err != nil {
				return fmt.Errorf("mask %q: %w", entry.Word, err)
			}
			rasters[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		utils.Logger.Warn("mask bundle aborted", zap.String("file_hash", img.Hash), zap.Error(err))
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, entry := range entries {
		w, err := zw.Create(bundleName + "/" + fileStem(entry.Word) + "-mask.png")
		if err != nil {
			return nil, fmt.Errorf("failed to create archive entry: %w", err)
		}
		if _, err := w.Write(rasters[i]); err != nil {
			return nil, fmt.Errorf("failed to write archive entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}

	return &Artifact{Filename: bundleName + ".zip", MimeType: "application/zip", Data: buf.Bytes()}, nil
}

var separatorReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

// fileStem 标注词转为文件名，去掉路径分隔符
func fileStem(word string) string {
	stem := path.Base(separatorReplacer.Replace(word))
	if stem == "." || stem == ".." {
		return "_"
	}
	return stem
}

// contours 依次尝试：掩码自带轮廓、后端轮廓接口、本地从 PNG 提取
func (e *Exporter) contours(ctx context.Context, hash string, entry model.Annotation) (*model.ContourDocument, error) {
	if entry.Mask.Contours != nil {
		return entry.Mask.Contours, nil
	}

	doc, err := e.backend.FetchContours(ctx, hash, entry.Word)
	if err == nil {
		return doc, nil
	}
	if !client.IsNotFound(err) || e.tracer == nil {
		return nil, backendError("fetch contours", err)
	}

	data, err := e.raster(ctx, hash, entry.Mask)
	if err != nil {
		return nil, err
	}
	fidelity := model.MaxContourFidelitySetting
	if e.fidelity != nil {
		fidelity = e.fidelity()
	}
	traced, err := e.tracer.Trace(data, fidelity)
	if err != nil {
		return nil, fmt.Errorf("failed to trace contours for %q: %w", entry.Word, err)
	}
	return &model.ContourDocument{Label: entry.Word, Contours: traced}, nil
}

func (e *Exporter) raster(ctx context.Context, hash string, mask *model.MaskRecord) ([]byte, error) {
	data, err := e.cache.GetRaster(ctx, hash, mask.UUID)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
	}
	if data != nil {
		return data, nil
	}

	data, err = e.backend.FetchRaster(ctx, mask.MaskImage)
	if err != nil {
		return nil, backendError("fetch mask image", err)
	}

	if err := e.cache.SetRaster(ctx, hash, mask.UUID, data); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}
	return data, nil
}
