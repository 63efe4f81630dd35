package service

import (
	"context"

	"github.com/TIANLI0/MaskKit/model"
)

// ImageBackend 图片相关后端接口
type ImageBackend interface {
	UploadImage(ctx context.Context, name, contentType string, data []byte) (*model.UploadResult, error)
	ListImages(ctx context.Context) ([]model.RemoteImage, error)
	ListWords(ctx context.Context, hash string) ([]string, error)
	LastSelected(ctx context.Context) (string, error)
	SelectImage(ctx context.Context, hash string) error
	DeleteImage(ctx context.Context, hash string) error
}

// WordBackend 标注词相关后端接口
type WordBackend interface {
	AddWord(ctx context.Context, hash, word string) error
	EditWord(ctx context.Context, hash, oldWord, newWord string) error
	DeleteWord(ctx context.Context, hash, word string) error
}

// MaskBackend 分割相关后端接口
type MaskBackend interface {
	RequestSegmentation(ctx context.Context, req model.SegmentRequest) error
	FetchMasks(ctx context.Context, hash, word string) ([]model.MaskRecord, error)
	DeleteMask(ctx context.Context, hash, word string) error
}

// ExportBackend 导出相关后端接口
type ExportBackend interface {
	FetchContours(ctx context.Context, hash, word string) (*model.ContourDocument, error)
	FetchRaster(ctx context.Context, rawURL string) ([]byte, error)
}

// Backend 完整的后端接口，由 client.Client 实现
type Backend interface {
	ImageBackend
	WordBackend
	MaskBackend
	ExportBackend
}
