package service

import (
	"errors"
	"sync"
	"time"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

// Canvas 工具选择与提示几何数据的编辑
type Canvas struct {
	catalog    *Catalog
	eraseDelay time.Duration
	afterFunc  func(time.Duration, func())

	mu      sync.Mutex
	erasing map[eraseKey]bool
}

type eraseKey struct {
	image  string
	target model.Primitive
}

func NewCanvas(catalog *Catalog, eraseDelay time.Duration) *Canvas {
	return &Canvas{
		catalog:    catalog,
		eraseDelay: eraseDelay,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		erasing: make(map[eraseKey]bool),
	}
}

// ClickTool 切换工具；不可用的工具返回 ErrToolUnavailable
func (c *Canvas) ClickTool(t model.Tool) (model.Tool, error) {
	var next model.Tool
	_, err := c.catalog.UpdateSelected(func(img *model.Image, tool *model.Tool) error {
		if !t.Valid() {
			return ErrToolUnavailable
		}
		next = tool.Click(t)
		if !model.ToolAvailable(*img, next) {
			return ErrToolUnavailable
		}
		*tool = next
		return nil
	})
	return next, err
}

// Click 包含点/排除点工具下的画布点击
func (c *Canvas) Click(p model.Point) (model.Image, error) {
	if !inBounds(p) {
		return model.Image{}, ErrInvalidPrompt
	}
	return c.edit(func(img *model.Image, tool model.Tool) error {
		switch tool {
		case model.ToolInclusion:
			img.Prompts = img.Prompts.AddInclusion(p)
		case model.ToolExclusion:
			img.Prompts = img.Prompts.AddExclusion(p)
		default:
			return errNoop
		}
		return nil
	})
}

// Drag 边界框工具下的拖拽，面积为零的框被丢弃
func (c *Canvas) Drag(from, to model.Point) (model.Image, error) {
	if !inBounds(from) || !inBounds(to) {
		return model.Image{}, ErrInvalidPrompt
	}
	return c.edit(func(img *model.Image, tool model.Tool) error {
		if tool != model.ToolBox {
			return errNoop
		}
		prompts, ok := img.Prompts.AddBox(model.Box{X1: from.X, Y1: from.Y, X2: to.X, Y2: to.Y})
		if !ok {
			return errNoop
		}
		img.Prompts = prompts
		return nil
	})
}

// Erase 橡皮擦：延迟 eraseDelay 后按值删除图元，重复点击只删除一次；
// 延迟期间发起了分割请求时擦除被丢弃
func (c *Canvas) Erase(target model.Primitive) error {
	var key eraseKey
	scheduled := false
	_, err := c.catalog.UpdateSelected(func(img *model.Image, tool *model.Tool) error {
		if img.Busy() {
			return ErrSegmentationBusy
		}
		if *tool != model.ToolEraser {
			return errNoop
		}
		if _, ok := img.Prompts.Remove(target); !ok {
			return errNoop
		}
		k := eraseKey{image: img.Key(), target: target}
		if !c.markErasing(k) {
			return errNoop
		}
		key, scheduled = k, true
		// 此处不修改数据，删除在动画结束时执行
		return errNoop
	})
	if !scheduled {
		if errors.Is(err, errNoop) {
			return nil
		}
		return err
	}

	remove := func() {
		defer c.unmarkErasing(key)
		_, err := c.catalog.Update(key.image, func(img *model.Image) error {
			// 请求进行中提示数据冻结，本次擦除作废
			if img.Busy() {
				return ErrSegmentationBusy
			}
			prompts, ok := img.Prompts.Remove(key.target)
			if !ok {
				return errNoop
			}
			img.Prompts = prompts
			return nil
		})
		if err != nil && !errors.Is(err, errNoop) {
			utils.Logger.Debug("erase skipped", zap.String("image", key.image), zap.Error(err))
		}
	}

	if c.eraseDelay <= 0 {
		remove()
		return nil
	}
	c.afterFunc(c.eraseDelay, remove)
	return nil
}

// ClearAll 清空当前图片的全部图元，与工具无关
func (c *Canvas) ClearAll() (model.Image, error) {
	return c.catalog.UpdateSelected(func(img *model.Image, _ *model.Tool) error {
		if img.Busy() {
			return ErrSegmentationBusy
		}
		img.Prompts = img.Prompts.Cleared()
		return nil
	})
}

// edit 点/框工具的公共前置条件：未选中标注词或工具不可用时为空操作
func (c *Canvas) edit(fn func(img *model.Image, tool model.Tool) error) (model.Image, error) {
	img, err := c.catalog.UpdateSelected(func(img *model.Image, tool *model.Tool) error {
		if img.Busy() {
			return ErrSegmentationBusy
		}
		if img.SelectedWord == "" || !model.ToolAvailable(*img, *tool) {
			return errNoop
		}
		return fn(img, *tool)
	})
	if errors.Is(err, errNoop) {
		current, _ := c.catalog.Selected()
		return current, nil
	}
	return img, err
}

func (c *Canvas) markErasing(key eraseKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.erasing[key] {
		return false
	}
	c.erasing[key] = true
	return true
}

func (c *Canvas) unmarkErasing(key eraseKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.erasing, key)
}

func inBounds(p model.Point) bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}
