// Package region 把请求方路由到其账号所属分区的后端
// 分区表在启动时构建，之后只读；每个请求都重新读取用户资料上的分区标记，不做缓存
package region

import (
	"context"
	"fmt"

	"regionchat_server/internal/config"
	"regionchat_server/internal/model"
	"regionchat_server/internal/store"
	"regionchat_server/pkg/errorx"
	"regionchat_server/pkg/util/retry"

	"go.uber.org/zap"
)

// Identity 认证中间件解析出的调用方身份
type Identity struct {
	UserID string
	Region model.Region
	// Trusted 身份来自可信网关头而非 JWT，只允许落到文档库分区
	Trusted bool
}

// Resolution 一次请求的路由结果，生命周期不超过该请求
type Resolution struct {
	Region  model.Region
	Backend *store.Backend
	Profile *model.UserProfile
}

// UserID 调用方 id
func (r *Resolution) UserID() string {
	return r.Profile.ID
}

// Router 分区路由
type Router struct {
	backends map[model.Region]*store.Backend
	attempts int
}

// NewRouter 按配置把分区映射到后端
// kinds 中缺少配置引用的后端类型时返回错误，启动即失败
func NewRouter(cfg *config.RegionConfig, kinds map[store.Kind]*store.Backend, attempts int) (*Router, error) {
	table := map[model.Region]string{
		model.RegionCN:     cfg.CN,
		model.RegionGlobal: cfg.Global,
	}
	backends := make(map[model.Region]*store.Backend, len(table))
	for region, kind := range table {
		b, ok := kinds[store.Kind(kind)]
		if !ok || b == nil {
			return nil, fmt.Errorf("region %s: backend %q not available", region, kind)
		}
		backends[region] = b
	}
	return &Router{backends: backends, attempts: attempts}, nil
}

// Backend 返回分区对应的后端
func (r *Router) Backend(region model.Region) (*store.Backend, bool) {
	b, ok := r.backends[region]
	return b, ok
}

// Resolve 解析调用方的后端与分区
// 任何一步无法确定身份都返回 401，不会退回默认后端
func (r *Router) Resolve(ctx context.Context, id Identity) (*Resolution, error) {
	userID := model.NormalizeUserID(id.UserID)
	if userID == "" {
		return nil, errorx.ErrUnauthorized
	}
	if !id.Region.Valid() {
		return nil, errorx.ErrUnauthorized.WithCause(fmt.Errorf("unknown region %q", id.Region))
	}
	backend, ok := r.backends[id.Region]
	if !ok {
		return nil, errorx.ErrUnauthorized.WithCause(fmt.Errorf("no backend for region %s", id.Region))
	}
	if id.Trusted && backend.Kind != store.KindDocument {
		return nil, errorx.ErrUnauthorized.WithCause(fmt.Errorf("trusted header identity not accepted for %s backend", backend.Kind))
	}

	profile, err := retry.Read(ctx, r.attempts, func(ctx context.Context) (*model.UserProfile, error) {
		return backend.Users.FindByID(ctx, userID)
	})
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.ErrUnauthorized.WithCause(err)
		}
		return nil, err
	}
	if profile.Region != id.Region {
		zap.L().Warn("会话分区与用户资料不一致",
			zap.String("user_id", userID),
			zap.String("claim_region", string(id.Region)),
			zap.String("profile_region", string(profile.Region)),
		)
		return nil, errorx.ErrUnauthorized.WithCause(fmt.Errorf("region claim %s does not match profile %s", id.Region, profile.Region))
	}
	return &Resolution{Region: id.Region, Backend: backend, Profile: profile}, nil
}

// Locate 在其他分区中查找用户，用于区分“用户不存在”和“跨分区”
// 只返回是否存在及所属分区，不返回资料
func (r *Router) Locate(ctx context.Context, exclude model.Region, userID string) (model.Region, bool, error) {
	self := r.backends[exclude]
	for region, backend := range r.backends {
		if region == exclude {
			continue
		}
		// 两个分区共用同一后端时，本分区已经查过
		if backend == self {
			continue
		}
		profile, err := retry.Read(ctx, r.attempts, func(ctx context.Context) (*model.UserProfile, error) {
			return backend.Users.FindByID(ctx, userID)
		})
		if errorx.IsNotFound(err) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		return profile.Region, true, nil
	}
	return "", false, nil
}
