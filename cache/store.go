package cache

import (
	"context"
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"stockbt/data"
	"stockbt/logger"
	"stockbt/monitoring"
)

// CachedStore 在数据存储层之上套一层Redis查询缓存。
// 读接口先查缓存再落库，写接口直接透传。
type CachedStore struct {
	inner      data.Store
	cache      *RedisCache
	expiration time.Duration

	hits   int64
	misses int64
}

// NewCachedStore 包装一个存储实例
func NewCachedStore(inner data.Store, cache *RedisCache, expiration time.Duration) *CachedStore {
	return &CachedStore{inner: inner, cache: cache, expiration: expiration}
}

// FetchBars 查询日K，命中缓存时不落库
func (s *CachedStore) FetchBars(ctx context.Context, symbols []string, start, end time.Time) ([]data.Bar, error) {
	// 股票列表可能上千只，做摘要避免超长键
	digest := md5.Sum([]byte(strings.Join(symbols, ",")))
	key := fmt.Sprintf("stockbt:bars:%x:%s:%s",
		digest, start.Format(data.DateLayout), end.Format(data.DateLayout))

	var bars []data.Bar
	if err := s.cache.Get(ctx, key, &bars); err == nil {
		s.recordHit(true)
		return bars, nil
	} else if err != redis.Nil {
		logger.Warnf("读取日K缓存失败: %v", err)
	}
	s.recordHit(false)

	bars, err := s.inner.FetchBars(ctx, symbols, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, bars, s.expiration); err != nil {
		logger.Warnf("写入日K缓存失败: %v", err)
	}
	return bars, nil
}

// FetchIndex 查询指数日K
func (s *CachedStore) FetchIndex(ctx context.Context, code string, start, end time.Time) ([]data.IndexBar, error) {
	key := fmt.Sprintf("stockbt:index:%s:%s:%s",
		code, start.Format(data.DateLayout), end.Format(data.DateLayout))

	var bars []data.IndexBar
	if err := s.cache.Get(ctx, key, &bars); err == nil {
		s.recordHit(true)
		return bars, nil
	} else if err != redis.Nil {
		logger.Warnf("读取指数缓存失败: %v", err)
	}
	s.recordHit(false)

	bars, err := s.inner.FetchIndex(ctx, code, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, bars, s.expiration); err != nil {
		logger.Warnf("写入指数缓存失败: %v", err)
	}
	return bars, nil
}

// FilterUniverse 筛选股票池
func (s *CachedStore) FilterUniverse(ctx context.Context, date time.Time, c data.UniverseCriteria) ([]string, error) {
	key := fmt.Sprintf("stockbt:universe:%s:%.2f:%.2f:%.2f:%.2f:%s",
		date.Format(data.DateLayout), c.MinPrice, c.MaxPrice, c.MinMarketCap, c.MaxMarketCap, c.Region)

	var symbols []string
	if err := s.cache.Get(ctx, key, &symbols); err == nil {
		s.recordHit(true)
		return symbols, nil
	} else if err != redis.Nil {
		logger.Warnf("读取股票池缓存失败: %v", err)
	}
	s.recordHit(false)

	symbols, err := s.inner.FilterUniverse(ctx, date, c)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, symbols, s.expiration); err != nil {
		logger.Warnf("写入股票池缓存失败: %v", err)
	}
	return symbols, nil
}

// SaveRun 回测结果直接落库，不走缓存
func (s *CachedStore) SaveRun(ctx context.Context, run *data.RunRecord) error {
	return s.inner.SaveRun(ctx, run)
}

func (s *CachedStore) recordHit(hit bool) {
	if hit {
		s.hits++
	} else {
		s.misses++
	}
	if total := s.hits + s.misses; total > 0 {
		monitoring.RecordCacheHitRatio(float64(s.hits) / float64(total))
	}
}
