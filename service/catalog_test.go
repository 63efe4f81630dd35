package service

import (
	"runtime"
	"sync"
	"testing"

	"github.com/TIANLI0/MaskKit/model"
)

func TestSelectionAfterDelete(t *testing.T) {
	tests := []struct {
		name      string
		selected  int
		deleted   int
		remaining int
		want      int
	}{
		{"last image", 0, 0, 0, -1},
		{"selected first", 0, 0, 2, 0},
		{"selected middle", 2, 2, 4, 1},
		{"before selected", 3, 1, 4, 2},
		{"after selected", 1, 3, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectionAfterDelete(tt.selected, tt.deleted, tt.remaining); got != tt.want {
				t.Errorf("selectionAfterDelete(%d, %d, %d) = %d, want %d",
					tt.selected, tt.deleted, tt.remaining, got, tt.want)
			}
		})
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	c := NewCatalog()
	c.Insert(uploadedImage("a", "cat"))

	before := c.Snapshot()
	if _, err := c.Update("a", func(img *model.Image) error {
		img.Entries[0].Word = "dog"
		img.Prompts = img.Prompts.AddInclusion(model.Point{X: 0.5, Y: 0.5})
		return nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if got := before.Images[0].Entries[0].Word; got != "cat" {
		t.Errorf("snapshot changed after update: %q", got)
	}
	if len(before.Images[0].Prompts.Inclusion) != 0 {
		t.Error("snapshot prompts changed after update")
	}
	after := c.Snapshot()
	if after.Version <= before.Version {
		t.Errorf("version did not advance: %d -> %d", before.Version, after.Version)
	}
}

func TestRemoveUpdatesSelection(t *testing.T) {
	c := NewCatalog()
	c.Insert(uploadedImage("a"))
	c.Insert(uploadedImage("b"))
	c.Insert(uploadedImage("c"))
	if _, err := c.Select(2); err != nil {
		t.Fatal(err)
	}

	if !c.Remove("c") {
		t.Fatal("Remove returned false")
	}
	s := c.Snapshot()
	if s.Selected != 1 {
		t.Errorf("expected selection 1, got %d", s.Selected)
	}
	if c.Remove("missing") {
		t.Error("expected Remove of unknown key to fail")
	}
}

func TestUpdateResetsUnavailableTool(t *testing.T) {
	c := NewCatalog()
	img := uploadedImage("a", "cat")
	img.SelectedWord = "cat"
	c.Insert(img)
	if _, err := c.UpdateSelected(func(img *model.Image, tool *model.Tool) error {
		*tool = model.ToolBox
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	// 有包含点后边界框不可用
	if _, err := c.Update("a", func(img *model.Image) error {
		img.Prompts = img.Prompts.AddInclusion(model.Point{X: 0.1, Y: 0.1})
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if tool := c.Snapshot().Tool; tool != model.ToolNone {
		t.Errorf("expected tool reset, got %s", tool)
	}
}

func TestSubscribeReceivesCommits(t *testing.T) {
	c := NewCatalog()
	var versions []uint64
	c.Subscribe(func(s Snapshot) { versions = append(versions, s.Version) })

	c.Insert(uploadedImage("a"))
	if _, err := c.Select(5); err == nil {
		t.Fatal("expected error for out of range select")
	}
	c.Insert(uploadedImage("b"))

	if len(versions) != 2 || versions[0] != 1 || versions[1] != 2 {
		t.Errorf("unexpected notifications: %v", versions)
	}
}

func TestConcurrentCommitsNotifyInVersionOrder(t *testing.T) {
	c := NewCatalog()
	c.Insert(uploadedImage("h"))

	var mu sync.Mutex
	var versions []uint64
	c.Subscribe(func(s Snapshot) {
		// 让出调度，放大并发提交的交错
		runtime.Gosched()
		mu.Lock()
		versions = append(versions, s.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Update("h", func(img *model.Image) error {
					img.Width++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if len(versions) != 400 {
		t.Fatalf("expected 400 notifications, got %d", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] != versions[i-1]+1 {
			t.Fatalf("notification %d out of order: %d after %d", i, versions[i], versions[i-1])
		}
	}
}
