// Package member 会话成员的写入
package member

import (
	"context"
	"time"

	"regionchat_server/internal/model"
	"regionchat_server/internal/store"
	"regionchat_server/pkg/errorx"
	"regionchat_server/pkg/util/retry"

	"go.uber.org/zap"
)

// Provisioner 成员写入器
// 批量插入失败时退回逐行插入，最后重新读取确认每个成员都已落库
type Provisioner struct {
	attempts int
}

// NewProvisioner 创建成员写入器，attempts 为确认读的最大尝试次数
func NewProvisioner(attempts int) *Provisioner {
	return &Provisioner{attempts: attempts}
}

// AddMembers 为会话写入成员，memberIDs 中第一个为 owner
// 返回重新读取到的成员行；任一成员缺失都返回错误，不会静默成功
func (p *Provisioner) AddMembers(ctx context.Context, members store.MemberStore, conversationID string, memberIDs []string) ([]model.ConversationMember, error) {
	rows := model.NewMembers(conversationID, memberIDs, time.Now().UTC().Truncate(time.Millisecond))
	if len(rows) == 0 {
		return nil, errorx.ErrInvalidParam
	}

	if err := members.BulkInsert(ctx, rows); err != nil {
		zap.L().Warn("批量添加成员失败，改为逐个添加",
			zap.String("conversation_id", conversationID),
			zap.Int("count", len(rows)),
			zap.Error(err),
		)
		for _, row := range rows {
			// 批量插入可能已部分写入，重复行视为成功
			if err := members.Insert(ctx, row); err != nil && !errorx.IsDuplicate(err) {
				zap.L().Error("添加成员失败",
					zap.String("conversation_id", conversationID),
					zap.String("user_id", row.UserID),
					zap.Error(err),
				)
			}
		}
	}

	return p.verify(ctx, members, conversationID, rows)
}

// verify 重新读取成员，确认期望的每个用户都存在
func (p *Provisioner) verify(ctx context.Context, members store.MemberStore, conversationID string, expected []model.ConversationMember) ([]model.ConversationMember, error) {
	stored, err := retry.Read(ctx, p.attempts, func(ctx context.Context) ([]model.ConversationMember, error) {
		return members.ListMembers(ctx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]model.ConversationMember, len(stored))
	for _, m := range stored {
		byUser[m.UserID] = m
	}

	out := make([]model.ConversationMember, 0, len(expected))
	var missing []string
	for _, want := range expected {
		m, ok := byUser[want.UserID]
		if !ok {
			missing = append(missing, want.UserID)
			continue
		}
		out = append(out, m)
	}
	if len(missing) > 0 {
		zap.L().Error("会话成员写入不完整",
			zap.String("conversation_id", conversationID),
			zap.Strings("missing", missing),
		)
		return nil, errorx.Newf(errorx.CodeDBError, "会话 %s 成员写入不完整，缺少 %d 人", conversationID, len(missing))
	}
	return out, nil
}
