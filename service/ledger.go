package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
)

type commandKind string

const (
	commandAdd    commandKind = "add"
	commandEdit   commandKind = "edit"
	commandDelete commandKind = "delete"
)

// ledgerCommand 标注词变更及其撤销描述
type ledgerCommand struct {
	Kind  commandKind `json:"kind"`
	Hash  string      `json:"file_hash"`
	Index int         `json:"index"`
	Word  string      `json:"word"`
	Prior string      `json:"prior,omitempty"`
}

func (cmd ledgerCommand) apply(img *model.Image) {
	switch cmd.Kind {
	case commandAdd:
		img.Entries = append(img.Entries, model.Annotation{Word: cmd.Word})
	case commandEdit:
		img.Entries[cmd.Index].Word = cmd.Word
		if img.SelectedWord == cmd.Prior {
			img.SelectedWord = cmd.Word
		}
	case commandDelete:
		// 标注词与掩码槽位一起移除
		if i := img.IndexOf(cmd.Word); i >= 0 {
			img.Entries = append(img.Entries[:i], img.Entries[i+1:]...)
		}
	}
}

func (cmd ledgerCommand) undo(img *model.Image) {
	switch cmd.Kind {
	case commandAdd:
		if i := img.IndexOf(cmd.Word); i >= 0 {
			img.Entries = append(img.Entries[:i], img.Entries[i+1:]...)
		}
		if img.SelectedWord == cmd.Word {
			img.SelectedWord = ""
		}
	case commandEdit:
		i := cmd.Index
		if i >= len(img.Entries) || img.Entries[i].Word != cmd.Word {
			i = img.IndexOf(cmd.Word)
		}
		if i < 0 {
			return
		}
		img.Entries[i].Word = cmd.Prior
		if img.SelectedWord == cmd.Word {
			img.SelectedWord = cmd.Prior
		}
	}
}

// Ledger 标注词的乐观增删改
type Ledger struct {
	catalog *Catalog
	backend WordBackend
	cache   *MaskCache
	run     *runner

	mu       sync.Mutex
	deleting map[string]bool
}

func NewLedger(catalog *Catalog, backend WordBackend, cache *MaskCache, run *runner) *Ledger {
	return &Ledger{
		catalog:  catalog,
		backend:  backend,
		cache:    cache,
		run:      run,
		deleting: make(map[string]bool),
	}
}

// Add 追加标注词；空词或重复词静默忽略并返回 nil Pending
func (l *Ledger) Add(word string) (*Pending, error) {
	word = strings.TrimSpace(word)

	var cmd ledgerCommand
	_, err := l.catalog.UpdateSelected(func(img *model.Image, _ *model.Tool) error {
		if err := writable(img); err != nil {
			return err
		}
		if word == "" || img.IndexOf(word) >= 0 {
			return errNoop
		}
		cmd = ledgerCommand{Kind: commandAdd, Hash: img.Hash, Index: len(img.Entries), Word: word}
		cmd.apply(img)
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return l.run.start("add word", func(ctx context.Context) error {
		if err := l.backend.AddWord(ctx, cmd.Hash, cmd.Word); err != nil {
			l.rollback(cmd)
			return backendError("add word", err)
		}
		return nil
	}), nil
}

// Edit 重命名标注词，选中状态跟随新名字
func (l *Ledger) Edit(index int, newWord string) (*Pending, error) {
	newWord = strings.TrimSpace(newWord)

	var cmd ledgerCommand
	_, err := l.catalog.UpdateSelected(func(img *model.Image, _ *model.Tool) error {
		if err := writable(img); err != nil {
			return err
		}
		if index < 0 || index >= len(img.Entries) {
			return ErrWordNotFound
		}
		old := img.Entries[index].Word
		// 删除确认中的标注词不可再改名
		if l.isDeleting(img.Hash, old) {
			return ErrWordNotFound
		}
		if newWord == "" || newWord == old || img.IndexOf(newWord) >= 0 {
			return ErrInvalidWord
		}
		cmd = ledgerCommand{Kind: commandEdit, Hash: img.Hash, Index: index, Word: newWord, Prior: old}
		cmd.apply(img)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return l.run.start("edit word", func(ctx context.Context) error {
		if err := l.backend.EditWord(ctx, cmd.Hash, cmd.Prior, cmd.Word); err != nil {
			l.rollback(cmd)
			return backendError("edit word", err)
		}
		return nil
	}), nil
}

// Delete 后端确认后才移除标注词及其掩码；越界或重复的删除是空操作
func (l *Ledger) Delete(index int) (*Pending, error) {
	var cmd ledgerCommand
	var mask *model.MaskRecord
	_, err := l.catalog.UpdateSelected(func(img *model.Image, tool *model.Tool) error {
		if err := writable(img); err != nil {
			return err
		}
		if index < 0 || index >= len(img.Entries) {
			return errNoop
		}
		entry := img.Entries[index]
		if !l.markDeleting(img.Hash, entry.Word) {
			return errNoop
		}
		cmd = ledgerCommand{Kind: commandDelete, Hash: img.Hash, Index: index, Word: entry.Word}
		mask = entry.Mask
		if img.SelectedWord == entry.Word {
			img.SelectedWord = ""
			if tool.NeedsWord() {
				*tool = model.ToolNone
			}
		}
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return l.run.start("delete word", func(ctx context.Context) error {
		defer l.unmarkDeleting(cmd.Hash, cmd.Word)

		if err := l.backend.DeleteWord(ctx, cmd.Hash, cmd.Word); err != nil {
			return backendError("delete word", err)
		}
		if _, err := l.catalog.Update(cmd.Hash, func(img *model.Image) error {
			cmd.apply(img)
			return nil
		}); err != nil && !errors.Is(err, ErrImageNotFound) {
			return err
		}
		if mask != nil {
			if err := l.cache.Invalidate(ctx, cmd.Hash, mask.UUID); err != nil {
				utils.Logger.Warn("failed to invalidate mask cache", zap.Error(err))
			}
		}
		return nil
	}), nil
}

// Select 选中或取消选中标注词
func (l *Ledger) Select(word string) (model.Image, error) {
	return l.catalog.UpdateSelected(func(img *model.Image, tool *model.Tool) error {
		if img.IndexOf(word) < 0 {
			return ErrWordNotFound
		}
		if img.SelectedWord == word {
			img.SelectedWord = ""
			if tool.NeedsWord() {
				*tool = model.ToolNone
			}
			return nil
		}
		img.SelectedWord = word
		return nil
	})
}

func (l *Ledger) rollback(cmd ledgerCommand) {
	_, err := l.catalog.Update(cmd.Hash, func(img *model.Image) error {
		cmd.undo(img)
		return nil
	})
	if err != nil {
		utils.Logger.Warn("failed to roll back word change",
			zap.String("kind", string(cmd.Kind)),
			zap.String("word", cmd.Word),
			zap.Error(err))
		return
	}
	utils.Logger.Info("word change rolled back",
		zap.String("kind", string(cmd.Kind)),
		zap.String("word", cmd.Word),
		zap.String("prior", cmd.Prior))
}

func (l *Ledger) markDeleting(hash, word string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := hash + "\x00" + word
	if l.deleting[key] {
		return false
	}
	l.deleting[key] = true
	return true
}

func (l *Ledger) isDeleting(hash, word string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deleting[hash+"\x00"+word]
}

func (l *Ledger) unmarkDeleting(hash, word string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.deleting, hash+"\x00"+word)
}

// writable 标注词变更的前置条件
func writable(img *model.Image) error {
	if img.Busy() {
		return ErrSegmentationBusy
	}
	if img.Hash == "" {
		return ErrNotUploaded
	}
	return nil
}
