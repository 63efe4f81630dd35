package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"github.com/TIANLI0/MaskKit/client"
	"github.com/TIANLI0/MaskKit/model"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAddImageRejectsInvalidType(t *testing.T) {
	backend := newFakeBackend()
	catalog := NewCatalog()
	images := NewImages(catalog, backend, testUploadConfig(), testRunner(t))

	_, err := images.AddImage(UploadFile{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hi")})
	if !errors.Is(err, ErrInvalidFileType) {
		t.Fatalf("expected ErrInvalidFileType, got %v", err)
	}
	if n := backend.count("UploadImage"); n != 0 {
		t.Errorf("expected no upload, got %d", n)
	}
	if len(catalog.Snapshot().Images) != 0 {
		t.Error("catalog should be unchanged")
	}
}

func TestAddImageRejectsLargeFile(t *testing.T) {
	cfg := testUploadConfig()
	cfg.MaxSize = 4
	images := NewImages(NewCatalog(), newFakeBackend(), cfg, testRunner(t))

	_, err := images.AddImage(UploadFile{Name: "a.png", ContentType: "image/png", Data: []byte("12345")})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestAddImageMergesUploadResult(t *testing.T) {
	backend := newFakeBackend()
	backend.upload = func(name string) (*model.UploadResult, error) {
		return &model.UploadResult{ImageName: name, FileHash: "h1", ImageLocation: "/media/a.png"}, nil
	}
	catalog := NewCatalog()
	run := testRunner(t)
	images := NewImages(catalog, backend, testUploadConfig(), run)

	pending, err := images.AddImage(UploadFile{Name: "a.png", ContentType: "image/png", Data: testPNG(t, 4, 3)})
	if err != nil {
		t.Fatalf("AddImage failed: %v", err)
	}

	// 占位记录立即可见并被选中
	placeholder, ok := catalog.Selected()
	if !ok || placeholder.Hash != "" {
		t.Fatalf("expected selected placeholder, got %+v", placeholder)
	}

	if err := waitPending(t, pending); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	run.wait()

	img, ok := catalog.Find("h1")
	if !ok {
		t.Fatal("uploaded image not found by hash")
	}
	if img.Status != model.StatusUploaded || img.LocalID != placeholder.LocalID {
		t.Errorf("unexpected image after upload: %+v", img)
	}
	if img.Width != 4 || img.Height != 3 {
		t.Errorf("expected 4x3 preview, got %dx%d", img.Width, img.Height)
	}
}

func TestUploadResultBeforePlaceholderCommitStillMerges(t *testing.T) {
	responded := make(chan struct{})
	backend := newFakeBackend()
	backend.upload = func(name string) (*model.UploadResult, error) {
		close(responded)
		return &model.UploadResult{ImageName: name, FileHash: "early", ImageLocation: "/media/early.png"}, nil
	}
	catalog := NewCatalog()
	images := NewImages(catalog, backend, testUploadConfig(), testRunner(t))

	file := UploadFile{Name: "early.png", ContentType: "image/png", Data: []byte("png")}
	ready := newGate()
	done := make(chan error, 1)
	go func() {
		done <- images.upload(context.Background(), "local-early", file, ready)
	}()

	// 后端先返回，此时占位记录尚未提交
	<-responded
	if _, ok := catalog.Find("local-early"); ok {
		t.Fatal("placeholder committed too early")
	}
	catalog.Insert(model.Image{LocalID: "local-early", Name: file.Name, Status: model.StatusUploading})
	ready.open()

	if err := <-done; err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	img, ok := catalog.Find("early")
	if !ok || img.LocalID != "local-early" || img.Status != model.StatusUploaded || img.Src != "/media/early.png" {
		t.Errorf("upload result not merged into placeholder: %+v", img)
	}
	if n := len(catalog.Snapshot().Images); n != 1 {
		t.Errorf("expected one image, got %d", n)
	}
}

func TestDuplicateUploadRemovesOnlyPlaceholder(t *testing.T) {
	backend := newFakeBackend()
	backend.upload = func(name string) (*model.UploadResult, error) {
		return nil, &client.APIError{Status: http.StatusBadRequest, Message: client.DuplicateImageMessage}
	}
	catalog := NewCatalog()
	catalog.Insert(uploadedImage("existing"))
	images := NewImages(catalog, backend, testUploadConfig(), testRunner(t))

	pending, err := images.AddImage(UploadFile{Name: "again.png", ContentType: "image/png", Data: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	if err := waitPending(t, pending); !errors.Is(err, ErrDuplicateUpload) {
		t.Fatalf("expected ErrDuplicateUpload, got %v", err)
	}

	s := catalog.Snapshot()
	if len(s.Images) != 1 || s.Images[0].Hash != "existing" {
		t.Fatalf("expected only the existing image, got %+v", s.Images)
	}
	if s.Selected != 0 {
		t.Errorf("expected last remaining image selected, got %d", s.Selected)
	}
}

func TestFailedUploadKeepsLocalImage(t *testing.T) {
	backend := newFakeBackend()
	backend.upload = func(name string) (*model.UploadResult, error) {
		return nil, &client.APIError{Status: http.StatusInternalServerError, Message: "boom"}
	}
	catalog := NewCatalog()
	images := NewImages(catalog, backend, testUploadConfig(), testRunner(t))

	pending, err := images.AddImage(UploadFile{Name: "a.png", ContentType: "image/png", Data: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	if err := waitPending(t, pending); !errors.Is(err, ErrBackendRejected) {
		t.Fatalf("expected ErrBackendRejected, got %v", err)
	}
	img, ok := catalog.Selected()
	if !ok || img.Status != model.StatusPendingLocal || img.Hash != "" {
		t.Errorf("expected pending-local image, got %+v", img)
	}
}

func TestRefreshAlignsWordsAndMasks(t *testing.T) {
	backend := newFakeBackend()
	backend.listImages = func() ([]model.RemoteImage, error) {
		return []model.RemoteImage{
			{Name: "one.png", FileHash: "h1"},
			{Name: "two.png", FileHash: "h2", WordMasks: []model.RemoteWordMask{
				{Word: "dog", AssociatedMasks: []model.MaskRecord{{UUID: "m-dog"}}},
				{Word: "cat", AssociatedMasks: []model.MaskRecord{{UUID: "m-cat"}}},
			}},
			{Name: "dup.png", FileHash: "h1"},
		}, nil
	}
	backend.listWords = func(hash string) ([]string, error) {
		if hash == "h2" {
			return []string{"dog", "cat"}, nil
		}
		return nil, nil
	}
	backend.lastSelected = func() (string, error) { return "two.png", nil }

	catalog := NewCatalog()
	images := NewImages(catalog, backend, testUploadConfig(), testRunner(t))
	if err := images.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	s := catalog.Snapshot()
	if len(s.Images) != 2 {
		t.Fatalf("expected 2 images after dedupe, got %d", len(s.Images))
	}
	if s.Selected != 1 {
		t.Errorf("expected last selected image restored, got %d", s.Selected)
	}
	img := s.Images[1]
	if words := img.Words(); len(words) != 2 || words[0] != "cat" || words[1] != "dog" {
		t.Fatalf("expected sorted words, got %v", words)
	}
	if img.Entries[0].Mask.UUID != "m-cat" || img.Entries[1].Mask.UUID != "m-dog" {
		t.Errorf("masks not aligned with words: %+v", img.Entries)
	}
}

func TestRefreshRejectsMisalignedMasks(t *testing.T) {
	backend := newFakeBackend()
	backend.listImages = func() ([]model.RemoteImage, error) {
		return []model.RemoteImage{{Name: "a.png", FileHash: "h1", WordMasks: []model.RemoteWordMask{{Word: "cat"}}}}, nil
	}
	backend.listWords = func(hash string) ([]string, error) { return []string{"cat", "dog"}, nil }

	catalog := NewCatalog()
	catalog.Insert(uploadedImage("keep"))
	images := NewImages(catalog, backend, testUploadConfig(), testRunner(t))

	if err := images.Refresh(context.Background()); !errors.Is(err, ErrAlignmentViolation) {
		t.Fatalf("expected ErrAlignmentViolation, got %v", err)
	}
	if s := catalog.Snapshot(); len(s.Images) != 1 || s.Images[0].Hash != "keep" {
		t.Error("catalog should be unchanged after failed refresh")
	}
}

func TestDeleteImageWaitsForBackend(t *testing.T) {
	backend := newFakeBackend()
	catalog := NewCatalog()
	catalog.Insert(uploadedImage("a"))
	catalog.Insert(uploadedImage("b"))
	catalog.Insert(uploadedImage("c"))
	if _, err := catalog.Select(1); err != nil {
		t.Fatal(err)
	}
	images := NewImages(catalog, backend, testUploadConfig(), testRunner(t))

	pending, err := images.DeleteImage(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := waitPending(t, pending); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	s := catalog.Snapshot()
	if len(s.Images) != 2 || s.Selected != 0 {
		t.Errorf("unexpected catalog after delete: %d images, selected %d", len(s.Images), s.Selected)
	}
	if _, ok := catalog.Find("b"); ok {
		t.Error("deleted image still present")
	}
}

func TestDeleteImageFailureKeepsImage(t *testing.T) {
	backend := newFakeBackend()
	backend.deleteImage = func(hash string) error {
		return &client.APIError{Status: http.StatusInternalServerError, Message: "boom"}
	}
	catalog := NewCatalog()
	catalog.Insert(uploadedImage("a"))
	images := NewImages(catalog, backend, testUploadConfig(), testRunner(t))

	pending, err := images.DeleteImage(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := waitPending(t, pending); !errors.Is(err, ErrBackendRejected) {
		t.Fatalf("expected ErrBackendRejected, got %v", err)
	}
	if _, ok := catalog.Find("a"); !ok {
		t.Error("image removed despite backend failure")
	}
}
