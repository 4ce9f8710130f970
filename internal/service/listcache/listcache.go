// Package listcache 会话列表缓存
// 缓存只用于展示，不参与任何权限判断；关系变化后由两个 service 负责失效
package listcache

import (
	"context"
	"encoding/json"
	"time"

	myredis "regionchat_server/internal/dao/redis"
	"regionchat_server/internal/model"

	"go.uber.org/zap"
)

// asyncTimeout 异步任务自己的超时，请求结束后仍然有效
const asyncTimeout = 3 * time.Second

// Cache 会话列表缓存，cache 为 nil 或 ttl <= 0 时所有操作都是空操作
type Cache struct {
	cache myredis.AsyncCacheService
	ttl   time.Duration
}

// New 创建会话列表缓存
func New(cache myredis.AsyncCacheService, ttl time.Duration) *Cache {
	return &Cache{cache: cache, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.cache != nil && c.ttl > 0
}

// Get 读取缓存，未命中或出错都返回 false
func (c *Cache) Get(ctx context.Context, region model.Region, userID, workspaceID string) ([]model.Conversation, bool) {
	if !c.enabled() {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, myredis.ConversationListKey(string(region), userID, workspaceID))
	if err != nil {
		zap.L().Warn("读取会话列表缓存失败", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var convs []model.Conversation
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		zap.L().Warn("会话列表缓存格式错误", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return convs, true
}

// Put 异步回填缓存
func (c *Cache) Put(region model.Region, userID, workspaceID string, convs []model.Conversation) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(convs)
	if err != nil {
		zap.L().Error("序列化会话列表失败", zap.Error(err))
		return
	}
	key := myredis.ConversationListKey(string(region), userID, workspaceID)
	c.cache.SubmitTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()
		if err := c.cache.Set(ctx, key, string(data), c.ttl); err != nil {
			zap.L().Warn("回填会话列表缓存失败", zap.String("key", key), zap.Error(err))
		}
	})
}

// Invalidate 同步删除这些用户在全部工作区下的会话列表缓存
// 失败只记日志，缓存最多在 ttl 内陈旧
func (c *Cache) Invalidate(ctx context.Context, region model.Region, userIDs ...string) {
	if !c.enabled() {
		return
	}
	for _, id := range userIDs {
		if err := c.cache.DeleteByPattern(ctx, myredis.ConversationListPattern(string(region), id)); err != nil {
			zap.L().Warn("删除会话列表缓存失败", zap.String("user_id", id), zap.Error(err))
		}
	}
}
