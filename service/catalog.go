package service

import (
	"sync"

	"github.com/TIANLI0/MaskKit/model"
)

// Snapshot 目录的只读快照
type Snapshot struct {
	Version  uint64        `json:"version"`
	Images   []model.Image `json:"images"`
	Selected int           `json:"selected"`
	Tool     model.Tool    `json:"tool"`
}

// Current 当前选中的图片
func (s Snapshot) Current() (model.Image, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Images) {
		return model.Image{}, false
	}
	return s.Images[s.Selected], true
}

// Catalog 图片目录，工作区内唯一的可变共享状态。
// 每次写入都生成新的切片和被修改图片的副本，已发出的快照不会再变化。
type Catalog struct {
	mu        sync.Mutex
	dispatch  sync.Mutex
	version   uint64
	images    []model.Image
	selected  int
	tool      model.Tool
	listeners []func(Snapshot)
}

func NewCatalog() *Catalog {
	return &Catalog{selected: -1, tool: model.ToolNone}
}

// Subscribe 注册变更监听，在锁外按提交顺序调用；监听函数内不能再写目录
func (c *Catalog) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Catalog) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Selected 当前选中的图片
func (c *Catalog) Selected() (model.Image, bool) {
	return c.Snapshot().Current()
}

// At 按下标读取
func (c *Catalog) At(index int) (model.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.images) {
		return model.Image{}, false
	}
	return c.images[index], true
}

// Find 按哈希或本地标识查找
func (c *Catalog) Find(key string) (model.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(key); i >= 0 {
		return c.images[i], true
	}
	return model.Image{}, false
}

// Insert 追加图片并选中
func (c *Catalog) Insert(img model.Image) {
	c.commit(func() error {
		next := make([]model.Image, len(c.images), len(c.images)+1)
		copy(next, c.images)
		c.images = append(next, img)
		c.selected = len(c.images) - 1
		c.tool = model.ToolNone
		return nil
	})
}

// Select 选中指定下标的图片，切换图片时重置工具
func (c *Catalog) Select(index int) (model.Image, error) {
	var img model.Image
	err := c.commit(func() error {
		if index < 0 || index >= len(c.images) {
			return ErrImageNotFound
		}
		if c.selected != index {
			c.tool = model.ToolNone
		}
		c.selected = index
		img = c.images[index]
		return nil
	})
	return img, err
}

// UpdateSelected 修改当前选中的图片和工具
func (c *Catalog) UpdateSelected(fn func(img *model.Image, tool *model.Tool) error) (model.Image, error) {
	var out model.Image
	err := c.commit(func() error {
		if c.selected < 0 || c.selected >= len(c.images) {
			return ErrNoImageSelected
		}
		img := c.images[c.selected].Clone()
		tool := c.tool
		if err := fn(&img, &tool); err != nil {
			return err
		}
		c.replaceLocked(c.selected, img)
		c.tool = tool
		out = img
		return nil
	})
	return out, err
}

// Update 按哈希或本地标识修改图片，异步回调必须使用它而不是当前选中项
func (c *Catalog) Update(key string, fn func(img *model.Image) error) (model.Image, error) {
	var out model.Image
	err := c.commit(func() error {
		i := c.indexLocked(key)
		if i < 0 {
			return ErrImageNotFound
		}
		img := c.images[i].Clone()
		if err := fn(&img); err != nil {
			return err
		}
		c.replaceLocked(i, img)
		if i == c.selected && !img.Busy() && !model.ToolAvailable(img, c.tool) {
			c.tool = model.ToolNone
		}
		out = img
		return nil
	})
	return out, err
}

// AssignHash 上传成功后写入哈希；哈希已被其他图片占用时返回 ErrDuplicateUpload
func (c *Catalog) AssignHash(localID, hash, src string) (model.Image, error) {
	var out model.Image
	err := c.commit(func() error {
		i := c.indexLocked(localID)
		if i < 0 {
			return ErrImageNotFound
		}
		if j := c.indexLocked(hash); j >= 0 && j != i {
			return ErrDuplicateUpload
		}
		img := c.images[i].Clone()
		img.Hash = hash
		img.Status = model.StatusUploaded
		if src != "" && img.Src == "" {
			img.Src = src
		}
		c.replaceLocked(i, img)
		out = img
		return nil
	})
	return out, err
}

// RemoveRejected 移除上传被拒的占位图片，然后选中剩余的最后一张
func (c *Catalog) RemoveRejected(localID string) bool {
	err := c.commit(func() error {
		i := c.indexLocked(localID)
		if i < 0 {
			return ErrImageNotFound
		}
		c.removeLocked(i)
		c.selected = len(c.images) - 1
		c.tool = model.ToolNone
		return nil
	})
	return err == nil
}

// Remove 删除图片并按规则重新计算选中项
func (c *Catalog) Remove(key string) bool {
	err := c.commit(func() error {
		i := c.indexLocked(key)
		if i < 0 {
			return ErrImageNotFound
		}
		c.removeLocked(i)
		next := selectionAfterDelete(c.selected, i, len(c.images))
		if i == c.selected {
			c.tool = model.ToolNone
		}
		c.selected = next
		return nil
	})
	return err == nil
}

// Replace 整体替换目录
func (c *Catalog) Replace(images []model.Image, selected int) {
	c.commit(func() error {
		c.images = images
		if selected < 0 || selected >= len(images) {
			selected = -1
			if len(images) > 0 {
				selected = 0
			}
		}
		c.selected = selected
		c.tool = model.ToolNone
		return nil
	})
}

// selectionAfterDelete 删除下标 deleted 之后的选中项，remaining 为剩余数量
func selectionAfterDelete(selected, deleted, remaining int) int {
	switch {
	case remaining == 0:
		return -1
	case deleted == selected:
		if deleted-1 < 0 {
			return 0
		}
		return deleted - 1
	case deleted < selected:
		return selected - 1
	default:
		return selected
	}
}

func (c *Catalog) commit(fn func() error) error {
	c.mu.Lock()
	if err := fn(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.version++
	snap := c.snapshotLocked()
	listeners := c.listeners
	// 先取得分发锁再释放数据锁，保证快照按版本顺序送达
	c.dispatch.Lock()
	c.mu.Unlock()
	defer c.dispatch.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return nil
}

func (c *Catalog) snapshotLocked() Snapshot {
	return Snapshot{
		Version:  c.version,
		Images:   c.images,
		Selected: c.selected,
		Tool:     c.tool,
	}
}

func (c *Catalog) indexLocked(key string) int {
	if key == "" {
		return -1
	}
	for i, img := range c.images {
		if img.Hash == key || img.LocalID == key {
			return i
		}
	}
	return -1
}

func (c *Catalog) replaceLocked(i int, img model.Image) {
	next := make([]model.Image, len(c.images))
	copy(next, c.images)
	next[i] = img
	c.images = next
}

func (c *Catalog) removeLocked(i int) {
	next := make([]model.Image, 0, len(c.images)-1)
	next = append(next, c.images[:i]...)
	c.images = append(next, c.images[i+1:]...)
}
