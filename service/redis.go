package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MaskCache 掩码 PNG 缓存，nil 或禁用时所有读取都视为未命中
type MaskCache struct {
	client   *redis.Client
	ttl      time.Duration
	disabled atomic.Bool
}

func NewMaskCache(cfg *config.RedisConfig) *MaskCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &MaskCache{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *MaskCache) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Disable 连接失败后关闭缓存
func (s *MaskCache) Disable() {
	if s != nil {
		s.disabled.Store(true)
	}
}

func (s *MaskCache) enabled() bool {
	return s != nil && !s.disabled.Load()
}

func rasterKey(hash, uuid string) string {
	return "mask:" + hash + ":" + uuid
}

// GetRaster 从缓存获取掩码 PNG
func (s *MaskCache) GetRaster(ctx context.Context, hash, uuid string) ([]byte, error) {
	if !s.enabled() || uuid == "" {
		return nil, nil
	}
	data, err := s.client.Get(ctx, rasterKey(hash, uuid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}
	return data, nil
}

// SetRaster 写入掩码 PNG
func (s *MaskCache) SetRaster(ctx context.Context, hash, uuid string, data []byte) error {
	if !s.enabled() || uuid == "" {
		return nil
	}
	return s.client.Set(ctx, rasterKey(hash, uuid), data, s.ttl).Err()
}

// Invalidate 掩码被替换或删除后清除缓存
func (s *MaskCache) Invalidate(ctx context.Context, hash, uuid string) error {
	if !s.enabled() || uuid == "" {
		return nil
	}
	if err := s.client.Del(ctx, rasterKey(hash, uuid)).Err(); err != nil {
		return err
	}
	utils.Logger.Debug("mask cache invalidated", zap.String("file_hash", hash), zap.String("uuid", uuid))
	return nil
}

func (s *MaskCache) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
