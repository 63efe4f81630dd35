package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
)

// fakeBackend 记录调用次数，各方法行为可通过函数字段覆盖
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	upload       func(name string) (*model.UploadResult, error)
	listImages   func() ([]model.RemoteImage, error)
	listWords    func(hash string) ([]string, error)
	lastSelected func() (string, error)
	deleteImage  func(hash string) error
	addWord      func(hash, word string) error
	editWord     func(hash, oldWord, newWord string) error
	deleteWord   func(hash, word string) error
	segment      func(req model.SegmentRequest) error
	fetchMasks   func(hash, word string) ([]model.MaskRecord, error)
	deleteMask   func(hash, word string) error
	contours     func(hash, word string) (*model.ContourDocument, error)
	raster       func(rawURL string) ([]byte, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(map[string]int)}
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) UploadImage(ctx context.Context, name, contentType string, data []byte) (*model.UploadResult, error) {
	f.record("UploadImage")
	if f.upload != nil {
		return f.upload(name)
	}
	return &model.UploadResult{ImageName: name, FileHash: "hash-" + name}, nil
}

func (f *fakeBackend) ListImages(ctx context.Context) ([]model.RemoteImage, error) {
	f.record("ListImages")
	if f.listImages != nil {
		return f.listImages()
	}
	return nil, nil
}

func (f *fakeBackend) ListWords(ctx context.Context, hash string) ([]string, error) {
	f.record("ListWords")
	if f.listWords != nil {
		return f.listWords(hash)
	}
	return nil, nil
}

func (f *fakeBackend) LastSelected(ctx context.Context) (string, error) {
	f.record("LastSelected")
	if f.lastSelected != nil {
		return f.lastSelected()
	}
	return "", nil
}

func (f *fakeBackend) SelectImage(ctx context.Context, hash string) error {
	f.record("SelectImage")
	return nil
}

func (f *fakeBackend) DeleteImage(ctx context.Context, hash string) error {
	f.record("DeleteImage")
	if f.deleteImage != nil {
		return f.deleteImage(hash)
	}
	return nil
}

func (f *fakeBackend) AddWord(ctx context.Context, hash, word string) error {
	f.record("AddWord")
	if f.addWord != nil {
		return f.addWord(hash, word)
	}
	return nil
}

func (f *fakeBackend) EditWord(ctx context.Context, hash, oldWord, newWord string) error {
	f.record("EditWord")
	if f.editWord != nil {
		return f.editWord(hash, oldWord, newWord)
	}
	return nil
}

func (f *fakeBackend) DeleteWord(ctx context.Context, hash, word string) error {
	f.record("DeleteWord")
	if f.deleteWord != nil {
		return f.deleteWord(hash, word)
	}
	return nil
}

func (f *fakeBackend) RequestSegmentation(ctx context.Context, req model.SegmentRequest) error {
	f.record("RequestSegmentation")
	if f.segment != nil {
		return f.segment(req)
	}
	return nil
}

func (f *fakeBackend) FetchMasks(ctx context.Context, hash, word string) ([]model.MaskRecord, error) {
	f.record("FetchMasks")
	if f.fetchMasks != nil {
		return f.fetchMasks(hash, word)
	}
	return []model.MaskRecord{{ID: 1, UUID: "uuid-" + word, MaskImage: "/media/" + word + ".png"}}, nil
}

func (f *fakeBackend) DeleteMask(ctx context.Context, hash, word string) error {
	f.record("DeleteMask")
	if f.deleteMask != nil {
		return f.deleteMask(hash, word)
	}
	return nil
}

func (f *fakeBackend) FetchContours(ctx context.Context, hash, word string) (*model.ContourDocument, error) {
	f.record("FetchContours")
	if f.contours != nil {
		return f.contours(hash, word)
	}
	return &model.ContourDocument{Label: word}, nil
}

func (f *fakeBackend) FetchRaster(ctx context.Context, rawURL string) ([]byte, error) {
	f.record("FetchRaster")
	if f.raster != nil {
		return f.raster(rawURL)
	}
	return []byte("png:" + rawURL), nil
}

func testRunner(t *testing.T) *runner {
	t.Helper()
	r := newRunner(context.Background(), 5*time.Second)
	t.Cleanup(r.wait)
	return r
}

func testUploadConfig() *config.UploadConfig {
	return &config.UploadConfig{
		MaxSize:      1 << 20,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
		ReadyTimeout: time.Second,
	}
}

func waitPending(t *testing.T, p *Pending) error {
	t.Helper()
	if p == nil {
		t.Fatal("expected pending operation")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.Wait(ctx)
	if err == context.DeadlineExceeded {
		t.Fatal("pending operation did not settle")
	}
	return err
}

// uploadedImage 构造已上传且带标注词的图片
func uploadedImage(hash string, words ...string) model.Image {
	entries := make([]model.Annotation, len(words))
	for i, w := range words {
		entries[i] = model.Annotation{Word: w}
	}
	return model.Image{
		LocalID: "local-" + hash,
		Hash:    hash,
		Name:    hash + ".png",
		Status:  model.StatusUploaded,
		Entries: entries,
		Segment: model.SegmentIdle,
	}
}
