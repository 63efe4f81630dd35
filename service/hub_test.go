package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
)

type fakeConn struct {
	mu       sync.Mutex
	messages chan []byte
	fail     bool
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{messages: make(chan []byte, 16)}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.messages <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func receive(t *testing.T, c *fakeConn) Event {
	t.Helper()
	select {
	case data := <-c.messages:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatal(err)
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return Event{}
	}
}

func TestHubBroadcastsToClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	good, bad := newFakeConn(), newFakeConn()
	bad.fail = true
	hub.Register(good)
	hub.Register(bad)

	hub.Publish(EventIndicator, IndicatorFrame{Image: "h", Text: "Auto Segmenti"})
	ev := receive(t, good)
	if ev.Type != EventIndicator {
		t.Errorf("unexpected event type %s", ev.Type)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := hub.ClientCount(); n != 1 {
		t.Errorf("expected failing client dropped, %d clients left", n)
	}
	if !bad.isClosed() {
		t.Error("failing client not closed")
	}
}

func TestHubRegisterAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	c := newFakeConn()
	hub.Register(c)
	hub.Unregister(c)
	if !c.isClosed() {
		t.Error("expected connection closed after shutdown")
	}
}

func TestWorkspacePublishesCatalogChanges(t *testing.T) {
	cfg := &config.Config{}
	cfg.Backend.Timeout = 5 * time.Second
	cfg.Segment.Model = 3
	cfg.Segment.ContourFidelity = 2
	cfg.Upload = *testUploadConfig()

	ws := NewWorkspace(cfg, newFakeBackend(), nil, nil)
	defer ws.Close()

	c := newFakeConn()
	ws.Hub.Register(c)
	ws.Catalog.Insert(uploadedImage("h", "cat"))

	ev := receive(t, c)
	if ev.Type != EventCatalog {
		t.Fatalf("unexpected event type %s", ev.Type)
	}
	data, _ := json.Marshal(ev.Data)
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Images) != 1 || snap.Images[0].Hash != "h" || snap.Images[0].Entries[0].Word != "cat" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if ws.Segmenter.Settings() != (model.Settings{Model: 3, ContourFidelity: 2}) {
		t.Errorf("unexpected settings: %+v", ws.Segmenter.Settings())
	}
}
