package memstore

import (
	"context"

	"regionchat_server/internal/config"
	"regionchat_server/internal/model"
	"regionchat_server/internal/region"
	"regionchat_server/internal/store"
)

// Regions 两个分区各一个内存后端：cn 为文档库，global 为关系库
type Regions struct {
	CN     *Store
	Global *Store
	Router *region.Router
}

// NewRegions 构建分区与路由
func NewRegions(attempts int) *Regions {
	cn, global := New(store.KindDocument), New(store.KindRelational)
	router, err := region.NewRouter(
		&config.RegionConfig{CN: string(store.KindDocument), Global: string(store.KindRelational)},
		map[store.Kind]*store.Backend{
			store.KindDocument:   cn.Backend(),
			store.KindRelational: global.Backend(),
		},
		attempts,
	)
	if err != nil {
		panic(err)
	}
	return &Regions{CN: cn, Global: global, Router: router}
}

// Of 分区对应的内存后端
func (r *Regions) Of(reg model.Region) *Store {
	if reg == model.RegionCN {
		return r.CN
	}
	return r.Global
}

// AddUser 在用户所属分区写入资料
func (r *Regions) AddUser(u model.UserProfile) {
	r.Of(u.Region).AddUser(u)
}

// Scope 以 JWT 身份解析调用方
func (r *Regions) Scope(ctx context.Context, userID string, reg model.Region) (*region.Resolution, error) {
	return r.Router.Resolve(ctx, region.Identity{UserID: userID, Region: reg})
}
