// Package conversation 会话的创建、查询与成员侧删除
// 私聊对同一无序用户对只保留一个可用实例：先查找可复用的会话，找不到再创建，
// 并发创建产生的重复在读取时按 model.LessCanonical 确定性收敛
package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"

	"regionchat_server/internal/dto/request"
	"regionchat_server/internal/infrastructure/mq"
	"regionchat_server/internal/model"
	"regionchat_server/internal/region"
	"regionchat_server/internal/service/contact"
	"regionchat_server/internal/service/listcache"
	"regionchat_server/internal/service/member"
	"regionchat_server/internal/store"
	"regionchat_server/pkg/constants"
	"regionchat_server/pkg/errorx"
	"regionchat_server/pkg/util/retry"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// workspaceCheckLimit 群聊逐个检查工作区成员时的并发上限
const workspaceCheckLimit = 8

// conversationService 会话业务逻辑实现
type conversationService struct {
	router      *region.Router
	provisioner *member.Provisioner
	lists       *listcache.Cache
	publisher   mq.EventPublisher
	attempts    int
}

// NewConversationService 构造函数
func NewConversationService(router *region.Router, provisioner *member.Provisioner, lists *listcache.Cache, publisher mq.EventPublisher, attempts int) *conversationService {
	if attempts < 1 {
		attempts = retry.DefaultAttempts
	}
	return &conversationService{
		router:      router,
		provisioner: provisioner,
		lists:       lists,
		publisher:   publisher,
		attempts:    attempts,
	}
}

// Create 创建会话
// 私聊先过权限链再交给 FindOrCreateDirect；群聊/频道直接创建
func (s *conversationService) Create(ctx context.Context, scope *region.Resolution, req request.CreateConversationRequest) (*model.Conversation, error) {
	switch typ := model.ConversationType(req.Type); typ {
	case model.ConversationDirect:
		peerID, err := directPeer(scope.UserID(), req.MemberIDs)
		if err != nil {
			return nil, err
		}
		if peerID != scope.UserID() {
			if err := s.checkDirect(ctx, scope, peerID, req.WorkspaceID, req.SkipContactCheck); err != nil {
				return nil, err
			}
		}
		return s.FindOrCreateDirect(ctx, scope, peerID)
	case model.ConversationGroup, model.ConversationChannel:
		return s.createGroup(ctx, scope, typ, req)
	default:
		return nil, errorx.New(errorx.CodeInvalidParam, "未知的会话类型")
	}
}

// directPeer 从 member_ids 中取出私聊对方
// 客户端可能把自己也放进列表，去掉自己后必须恰好剩一人；只有自己即为自聊
func directPeer(callerID string, memberIDs []string) (string, error) {
	ids := uniqueIDs(memberIDs)
	if len(ids) > 1 {
		others := ids[:0]
		for _, id := range ids {
			if id != callerID {
				others = append(others, id)
			}
		}
		ids = others
	}
	if len(ids) != 1 {
		return "", errorx.New(errorx.CodeInvalidParam, "私聊只能指定一个成员")
	}
	return ids[0], nil
}

// checkDirect 私聊权限链：对方存在且同分区、未拉黑、隐私允许、同一工作区
// 几项查询并行执行，结果按固定顺序判定，保证同样的数据总是命中同一条规则
func (s *conversationService) checkDirect(ctx context.Context, scope *region.Resolution, peerID, workspaceID string, skipContactCheck bool) error {
	backend := scope.Backend
	callerID := scope.UserID()

	var (
		peer     *model.UserProfile
		peerErr  error
		contacts []model.Contact
	)
	inSpace := true
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := contact.FindPeer(gctx, s.router, scope, s.attempts, peerID)
		if err != nil && !isRuleOrNotFound(err) {
			return err
		}
		peer, peerErr = p, err
		return nil
	})
	g.Go(func() error {
		rows, err := retry.Read(gctx, s.attempts, func(ctx context.Context) ([]model.Contact, error) {
			return backend.Contacts.FindBetween(ctx, callerID, peerID)
		})
		contacts = rows
		return err
	})
	if workspaceID != "" {
		g.Go(func() error {
			ok, err := s.inWorkspace(gctx, backend, workspaceID, []string{callerID, peerID})
			inSpace = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if peerErr != nil {
		return peerErr
	}
	if model.Blocked(contacts) {
		return errorx.ErrBlocked
	}
	if !skipContactCheck && !peer.AllowsNonContacts() && !model.Connected(contacts) {
		return errorx.ErrPrivacy
	}
	if !inSpace {
		return errorx.ErrWorkspace
	}
	return nil
}

// inWorkspace 所有用户都属于工作区时返回 true
func (s *conversationService) inWorkspace(ctx context.Context, backend *store.Backend, workspaceID string, userIDs []string) (bool, error) {
	results := make([]bool, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workspaceCheckLimit)
	for i, id := range userIDs {
		g.Go(func() error {
			ok, err := retry.Read(gctx, s.attempts, func(ctx context.Context) (bool, error) {
				return backend.Users.IsWorkspaceMember(ctx, workspaceID, id)
			})
			results[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, ok := range results {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// FindOrCreateDirect 返回调用方与 peerID 之间唯一可用的私聊，peerID 为自己时即自聊
// 任一成员删除过的会话不再复用，会创建新会话
func (s *conversationService) FindOrCreateDirect(ctx context.Context, scope *region.Resolution, peerID string) (*model.Conversation, error) {
	backend := scope.Backend
	callerID := scope.UserID()
	key := model.DirectMemberKey(callerID, peerID)

	conv, found, err := s.findReusable(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if found {
		if err := s.unhide(ctx, scope, conv); err != nil {
			return nil, err
		}
		return conv, nil
	}

	conv = &model.Conversation{
		Type:      model.ConversationDirect,
		MemberKey: key,
		IsPrivate: true,
		CreatedBy: callerID,
	}
	if err := backend.Conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	members, err := s.provisioner.AddMembers(ctx, backend.Members, conv.ID, []string{callerID, peerID})
	if err != nil {
		return nil, err
	}
	conv.Members = members

	// 查找与创建之间没有事务，并发请求可能各建了一个，重新读取后收敛到规范会话
	if canon, ok, err := s.findReusable(ctx, scope, key); err != nil {
		zap.L().Warn("创建私聊后重新读取失败", zap.String("conversation_id", conv.ID), zap.Error(err))
	} else if ok && canon.ID != conv.ID {
		zap.L().Info("私聊并发创建，收敛到规范会话",
			zap.String("created_id", conv.ID),
			zap.String("canonical_id", canon.ID),
		)
		conv = canon
	}

	s.emit(ctx, scope, model.EventConversationCreated, peerID, conv.ID)
	s.lists.Invalidate(ctx, scope.Region, callerID, peerID)
	return conv, nil
}

// findReusable 按成员键查找可复用的私聊并选出规范会话
// 同一对用户存在多个可复用会话时记录日志并发出修复事件，不返回错误
func (s *conversationService) findReusable(ctx context.Context, scope *region.Resolution, key string) (*model.Conversation, bool, error) {
	convs, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.Conversation, error) {
		return scope.Backend.Conversations.FindDirect(ctx, key)
	})
	if err != nil {
		return nil, false, err
	}
	reusable := convs[:0]
	for _, c := range convs {
		if reusableDirect(&c, key) {
			reusable = append(reusable, c)
		}
	}
	canon, ok := model.Canonical(reusable)
	if !ok {
		return nil, false, nil
	}
	if len(reusable) > 1 {
		ids := make([]string, 0, len(reusable))
		for _, c := range reusable {
			ids = append(ids, c.ID)
		}
		zap.L().Warn("同一对用户存在多个私聊",
			zap.String("member_key", key),
			zap.String("canonical_id", canon.ID),
			zap.Strings("conversation_ids", ids),
		)
		s.emit(ctx, scope, model.EventRepairDuplicateConvo, "", canon.ID)
	}
	return &canon, true, nil
}

// reusableDirect 会话本身未删除，成员恰好是成员键中的用户，且没有成员删除过
func reusableDirect(c *model.Conversation, key string) bool {
	if c.Type != model.ConversationDirect || c.MemberKey != key || c.DeletedAt != nil {
		return false
	}
	if c.HasDeletedMember() {
		return false
	}
	want := strings.Split(key, ":")
	sort.Strings(want)
	got := c.MemberIDs()
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// unhide 重新打开被自己隐藏的会话
func (s *conversationService) unhide(ctx context.Context, scope *region.Resolution, conv *model.Conversation) error {
	m, ok := conv.Member(scope.UserID())
	if !ok || !m.IsHidden {
		return nil
	}
	if err := scope.Backend.Conversations.SetHidden(ctx, conv.ID, scope.UserID(), false); err != nil {
		return err
	}
	m.IsHidden = false
	s.lists.Invalidate(ctx, scope.Region, scope.UserID())
	return nil
}

// createGroup 创建群聊/频道，调用方为 owner
func (s *conversationService) createGroup(ctx context.Context, scope *region.Resolution, typ model.ConversationType, req request.CreateConversationRequest) (*model.Conversation, error) {
	backend := scope.Backend
	callerID := scope.UserID()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "群聊名称不能为空")
	}
	memberIDs := []string{callerID}
	for _, id := range uniqueIDs(req.MemberIDs) {
		if id != callerID {
			memberIDs = append(memberIDs, id)
		}
	}
	if len(memberIDs) > constants.GROUP_MAX_MEMBERS {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "成员数量不能超过 %d", constants.GROUP_MAX_MEMBERS)
	}

	if err := s.checkMembers(ctx, scope, memberIDs[1:]); err != nil {
		return nil, err
	}
	if req.WorkspaceID != "" {
		ok, err := s.inWorkspace(ctx, backend, req.WorkspaceID, memberIDs)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errorx.ErrWorkspace
		}
	}

	// 群聊默认私有，频道默认公开
	isPrivate := typ == model.ConversationGroup
	if req.IsPrivate != nil {
		isPrivate = *req.IsPrivate
	}
	conv := &model.Conversation{
		Type:        typ,
		WorkspaceID: req.WorkspaceID,
		Name:        name,
		Description: req.Description,
		IsPrivate:   isPrivate,
		CreatedBy:   callerID,
	}
	if err := backend.Conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	members, err := s.provisioner.AddMembers(ctx, backend.Members, conv.ID, memberIDs)
	if err != nil {
		return nil, err
	}
	conv.Members = members

	zap.L().Info("创建会话",
		zap.String("conversation_id", conv.ID),
		zap.String("type", string(typ)),
		zap.Int("members", len(members)),
	)
	s.emit(ctx, scope, model.EventConversationCreated, "", conv.ID)
	s.lists.Invalidate(ctx, scope.Region, memberIDs...)
	return conv, nil
}

// checkMembers 确认成员都存在于调用方的分区
// 批量查询缺失的成员再逐个定位，区分用户不存在与跨分区
func (s *conversationService) checkMembers(ctx context.Context, scope *region.Resolution, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	users, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.UserProfile, error) {
		return scope.Backend.Users.FindByIDs(ctx, ids)
	})
	if err != nil {
		return err
	}
	found := make(map[string]struct{}, len(users))
	for i := range users {
		if users[i].Region != scope.Region {
			return errorx.ErrRegionMismatch
		}
		found[users[i].ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; ok {
			continue
		}
		if _, err := contact.FindPeer(ctx, s.router, scope, s.attempts, id); err != nil {
			return err
		}
	}
	return nil
}

// Get 查询单个会话，调用方不是未删除的成员或会话已删除时返回 404
func (s *conversationService) Get(ctx context.Context, scope *region.Resolution, conversationID, workspaceID string) (*model.Conversation, error) {
	conv, err := retry.Read(ctx, s.attempts, func(ctx context.Context) (*model.Conversation, error) {
		return scope.Backend.Conversations.FindByID(ctx, conversationID)
	})
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.ErrNotFound
		}
		return nil, err
	}
	if !conv.VisibleTo(scope.UserID()) {
		return nil, errorx.ErrNotFound
	}
	if workspaceID != "" && conv.WorkspaceID != "" && conv.WorkspaceID != workspaceID {
		return nil, errorx.ErrNotFound
	}
	return conv, nil
}

// List 调用方的会话列表
// 过滤掉已删除、已隐藏的会话，以及对方已不是联系人的私聊；私聊按成员键去重后按活跃时间排序
func (s *conversationService) List(ctx context.Context, scope *region.Resolution, workspaceID string) ([]model.Conversation, error) {
	callerID := scope.UserID()
	if cached, ok := s.lists.Get(ctx, scope.Region, callerID, workspaceID); ok {
		return cached, nil
	}

	var (
		convs    []model.Conversation
		contacts []model.Contact
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		convs, err = retry.Read(gctx, s.attempts, func(ctx context.Context) ([]model.Conversation, error) {
			return scope.Backend.Conversations.ListForUser(ctx, callerID, workspaceID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		contacts, err = retry.Read(gctx, s.attempts, func(ctx context.Context) ([]model.Contact, error) {
			return scope.Backend.Contacts.ListByUser(ctx, callerID)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	connected := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		if !c.IsBlocked {
			connected[c.ContactUserID] = struct{}{}
		}
	}

	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if !c.VisibleTo(callerID) {
			continue
		}
		if m, _ := c.Member(callerID); m.IsHidden {
			continue
		}
		if c.Type == model.ConversationDirect {
			if !reusableDirect(&c, c.MemberKey) {
				continue
			}
			if peer := c.Peer(callerID); peer != callerID {
				if _, ok := connected[peer]; !ok {
					continue
				}
			}
		}
		out = append(out, c)
	}
	out = model.DedupeDirect(out)
	model.SortByActivity(out)
	if len(out) > constants.CONVERSATION_LIST_CAP {
		out = out[:constants.CONVERSATION_LIST_CAP]
	}

	s.lists.Put(scope.Region, callerID, workspaceID, out)
	return out, nil
}

// Hide 对自己隐藏会话，再次私聊时自动取消隐藏
func (s *conversationService) Hide(ctx context.Context, scope *region.Resolution, conversationID string) (*model.Conversation, error) {
	conv, err := s.Get(ctx, scope, conversationID, "")
	if err != nil {
		return nil, err
	}
	if err := scope.Backend.Conversations.SetHidden(ctx, conv.ID, scope.UserID(), true); err != nil {
		return nil, err
	}
	if m, ok := conv.Member(scope.UserID()); ok {
		m.IsHidden = true
	}
	s.lists.Invalidate(ctx, scope.Region, scope.UserID())
	return conv, nil
}

// Delete 调用方一侧删除会话，会话本身与其他成员不受影响
// 私聊被任一方删除后不再复用
func (s *conversationService) Delete(ctx context.Context, scope *region.Resolution, conversationID string) (*model.Conversation, error) {
	conv, err := s.Get(ctx, scope, conversationID, "")
	if err != nil {
		return nil, err
	}
	if err := scope.Backend.Conversations.MarkMemberDeleted(ctx, conv.ID, scope.UserID()); err != nil {
		return nil, err
	}
	updated, err := retry.Read(ctx, s.attempts, func(ctx context.Context) (*model.Conversation, error) {
		return scope.Backend.Conversations.FindByID(ctx, conv.ID)
	})
	if err != nil {
		return nil, err
	}
	// 私聊一方删除后另一方列表也不再展示该会话
	if conv.Type == model.ConversationDirect {
		s.lists.Invalidate(ctx, scope.Region, scope.UserID(), conv.Peer(scope.UserID()))
	} else {
		s.lists.Invalidate(ctx, scope.Region, scope.UserID())
	}
	return updated, nil
}

func (s *conversationService) emit(ctx context.Context, scope *region.Resolution, typ, targetID, entityID string) {
	if s.publisher == nil {
		return
	}
	event := model.RelationEvent{
		Type:     typ,
		Region:   scope.Region,
		ActorID:  scope.UserID(),
		TargetID: targetID,
		EntityID: entityID,
	}
	if targetID != "" {
		event.PairKey = model.DirectMemberKey(scope.UserID(), targetID)
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		zap.L().Error("发布关系事件失败", zap.String("type", typ), zap.Error(err))
	}
}

// uniqueIDs 归一化并去重，保持原顺序
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = model.NormalizeUserID(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isRuleOrNotFound(err error) bool {
	var codeErr *errorx.CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return codeErr.Rule != "" || errorx.IsNotFound(err)
}
