package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFileType    = errors.New("invalid file type")
	ErrFileTooLarge       = errors.New("file too large")
	ErrDuplicateUpload    = errors.New("image has already been uploaded")
	ErrBackendRejected    = errors.New("backend rejected request")
	ErrNoMaskSelected     = errors.New("no mask selected")
	ErrNoMasksAvailable   = errors.New("no masks available")
	ErrAlignmentViolation = errors.New("annotation and mask lists are misaligned")

	ErrNoImageSelected  = errors.New("no image selected")
	ErrImageNotFound    = errors.New("image not found")
	ErrNotUploaded      = errors.New("image has not finished uploading")
	ErrNoWordSelected   = errors.New("no word selected")
	ErrWordNotFound     = errors.New("word not found")
	ErrInvalidWord      = errors.New("invalid word")
	ErrToolUnavailable  = errors.New("tool unavailable")
	ErrInvalidPrompt    = errors.New("prompt outside image bounds")
	ErrSegmentationBusy = errors.New("segmentation in progress")
	ErrNotSegmentable   = errors.New("add an inclusion point or bounding box first")
	ErrInvalidSettings  = errors.New("invalid segmentation settings")
	ErrInvalidFormat    = errors.New("invalid export format")
)

// errNoop 操作被静默忽略，不对外暴露
var errNoop = errors.New("noop")

// backendError 包装后端错误，errors.Is(err, ErrBackendRejected) 成立且保留原始错误
func backendError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendRejected, op, err)
}
