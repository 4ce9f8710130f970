package contact

import (
	"context"

	"regionchat_server/internal/model"
	"regionchat_server/internal/region"
	"regionchat_server/pkg/errorx"
	"regionchat_server/pkg/util/retry"

	"go.uber.org/zap"
)

// ListContacts 获取联系人列表（含拉黑的联系人，由客户端按 is_blocked 分组）
func (s *contactService) ListContacts(ctx context.Context, scope *region.Resolution) ([]model.ContactView, error) {
	rows, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.Contact, error) {
		return scope.Backend.Contacts.ListByUser(ctx, scope.UserID())
	})
	if err != nil {
		return nil, err
	}
	views := make([]model.ContactView, 0, len(rows))
	if len(rows) == 0 {
		return views, nil
	}
	ids := make([]string, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.ContactUserID)
	}
	summaries, err := summariesByID(ctx, scope.Backend, s.attempts, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		p, ok := summaries[c.ContactUserID]
		if !ok {
			// 资料已被身份系统删除的联系人不展示
			continue
		}
		views = append(views, model.ContactView{Contact: c, Profile: p})
	}
	return views, nil
}

// DeleteContact 解除联系人关系
// 双向删除联系人行，并把这一对用户的私聊会话对双方都标记为已删除，
// 之后再私聊会创建新会话，旧会话的消息不会复活
func (s *contactService) DeleteContact(ctx context.Context, scope *region.Resolution, contactID string) error {
	backend := scope.Backend
	callerID := scope.UserID()
	contactID = model.NormalizeUserID(contactID)
	if contactID == "" || contactID == callerID {
		return errorx.ErrInvalidParam
	}

	rows, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.Contact, error) {
		return backend.Contacts.FindBetween(ctx, callerID, contactID)
	})
	if err != nil {
		return err
	}
	// 只有自己一侧未拉黑的行才算联系人
	owned := false
	for _, c := range rows {
		if c.UserID == callerID && !c.IsBlocked {
			owned = true
		}
	}
	if !owned {
		return errorx.ErrNotFound
	}

	if err := backend.Contacts.DeletePair(ctx, callerID, contactID); err != nil {
		return err
	}

	convs, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.Conversation, error) {
		return backend.Conversations.FindDirect(ctx, model.DirectMemberKey(callerID, contactID))
	})
	if err != nil {
		return err
	}
	for _, conv := range convs {
		for _, uid := range []string{callerID, contactID} {
			if err := backend.Conversations.MarkMemberDeleted(ctx, conv.ID, uid); err != nil {
				return err
			}
		}
	}

	zap.L().Info("解除联系人",
		zap.String("user_id", callerID),
		zap.String("contact_id", contactID),
		zap.Int("conversations", len(convs)),
	)
	s.lists.Invalidate(ctx, scope.Region, callerID, contactID)
	s.emit(ctx, scope, model.EventContactDeleted, contactID, "")
	return nil
}

// SetBlocked 拉黑/取消拉黑
// 拉黑时双方之间的 pending 申请一并关闭
func (s *contactService) SetBlocked(ctx context.Context, scope *region.Resolution, contactID string, blocked bool) (*model.ContactView, error) {
	backend := scope.Backend
	callerID := scope.UserID()
	contactID = model.NormalizeUserID(contactID)
	if contactID == "" {
		return nil, errorx.ErrInvalidParam
	}
	if contactID == callerID {
		return nil, errorx.ErrSelfRequest
	}
	peer, err := s.findPeer(ctx, scope, contactID)
	if err != nil {
		return nil, err
	}

	if err := backend.Contacts.SetBlocked(ctx, callerID, contactID, blocked); err != nil {
		return nil, err
	}

	typ := model.EventContactUnblocked
	if blocked {
		typ = model.EventContactBlocked
		s.closePending(ctx, scope, contactID)
	}
	s.lists.Invalidate(ctx, scope.Region, callerID, contactID)
	s.emit(ctx, scope, typ, contactID, "")

	rows, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.Contact, error) {
		return backend.Contacts.FindBetween(ctx, callerID, contactID)
	})
	if err != nil {
		return nil, err
	}
	view := &model.ContactView{
		Contact: model.Contact{UserID: callerID, ContactUserID: contactID, IsBlocked: blocked},
		Profile: peer.Summary(),
	}
	for _, c := range rows {
		if c.UserID == callerID {
			view.Contact = c
		}
	}
	return view, nil
}

// closePending 关闭双方之间的 pending 申请：自己发出的撤回，对方发来的拒绝
func (s *contactService) closePending(ctx context.Context, scope *region.Resolution, peerID string) {
	backend := scope.Backend
	active, err := backend.Requests.FindActiveBetween(ctx, scope.UserID(), peerID)
	if err != nil {
		zap.L().Warn("查询待处理申请失败", zap.String("peer_id", peerID), zap.Error(err))
		return
	}
	for _, r := range active {
		if r.Status != model.RequestPending {
			continue
		}
		to := model.RequestRejected
		if r.RequesterID == scope.UserID() {
			to = model.RequestCancelled
		}
		if _, err := backend.Requests.Transition(ctx, r.ID, model.RequestPending, to); err != nil {
			zap.L().Warn("关闭待处理申请失败", zap.String("request_id", r.ID), zap.Error(err))
		}
	}
}

// SetFavorite 设置星标
func (s *contactService) SetFavorite(ctx context.Context, scope *region.Resolution, contactID string, favorite bool) (*model.ContactView, error) {
	callerID := scope.UserID()
	contactID = model.NormalizeUserID(contactID)
	if contactID == "" {
		return nil, errorx.ErrInvalidParam
	}
	if err := scope.Backend.Contacts.SetFavorite(ctx, callerID, contactID, favorite); err != nil {
		return nil, err
	}
	rows, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.Contact, error) {
		return scope.Backend.Contacts.FindBetween(ctx, callerID, contactID)
	})
	if err != nil {
		return nil, err
	}
	summaries, err := summariesByID(ctx, scope.Backend, s.attempts, []string{contactID})
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		if c.UserID == callerID {
			return &model.ContactView{Contact: c, Profile: summaries[contactID]}, nil
		}
	}
	return nil, errorx.ErrNotFound
}
