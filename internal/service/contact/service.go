// Package contact 联系人与好友申请
// 好友申请状态机：pending -> accepted / rejected / cancelled，
// 同一对用户任意方向同时最多一条 active（pending/accepted）申请
package contact

import (
	"context"
	"errors"
	"net/http"

	"regionchat_server/internal/dto/request"
	"regionchat_server/internal/dto/respond"
	"regionchat_server/internal/infrastructure/mq"
	"regionchat_server/internal/model"
	"regionchat_server/internal/region"
	"regionchat_server/internal/service/listcache"
	"regionchat_server/internal/store"
	"regionchat_server/pkg/errorx"
	"regionchat_server/pkg/util/retry"

	"go.uber.org/zap"
)

// contactService 联系人业务逻辑实现
type contactService struct {
	router    *region.Router
	lists     *listcache.Cache
	publisher mq.EventPublisher
	attempts  int
}

// NewContactService 构造函数
func NewContactService(router *region.Router, lists *listcache.Cache, publisher mq.EventPublisher, attempts int) *contactService {
	if attempts < 1 {
		attempts = retry.DefaultAttempts
	}
	return &contactService{router: router, lists: lists, publisher: publisher, attempts: attempts}
}

// Submit 发起好友申请
func (s *contactService) Submit(ctx context.Context, scope *region.Resolution, req request.SubmitContactRequest) (*model.ContactRequestView, error) {
	view, err := s.submit(ctx, scope, req)
	return view, asBadRequest(err)
}

func (s *contactService) submit(ctx context.Context, scope *region.Resolution, req request.SubmitContactRequest) (*model.ContactRequestView, error) {
	backend := scope.Backend
	callerID := scope.UserID()

	// 1. 自己
	recipientID := model.NormalizeUserID(req.RecipientID)
	if recipientID == "" {
		return nil, errorx.ErrInvalidParam
	}
	if recipientID == callerID {
		return nil, errorx.ErrSelfRequest
	}

	// 2. 分区
	recipient, err := s.findPeer(ctx, scope, recipientID)
	if err != nil {
		return nil, err
	}

	// 3. 拉黑 4. 隐私 5. 已是联系人
	contacts, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.Contact, error) {
		return backend.Contacts.FindBetween(ctx, callerID, recipientID)
	})
	if err != nil {
		return nil, err
	}
	if model.Blocked(contacts) {
		return nil, errorx.ErrBlocked
	}
	if !req.SkipPrivacyCheck && !recipient.AllowsNonContacts() && !model.Connected(contacts) {
		return nil, errorx.ErrPrivacy
	}
	if len(contacts) > 0 {
		return nil, errorx.ErrContactExists
	}

	// 6. 已有 active 申请
	active, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.ContactRequest, error) {
		return backend.Requests.FindActiveBetween(ctx, callerID, recipientID)
	})
	if err != nil {
		return nil, err
	}
	for i := range active {
		r := &active[i]
		switch r.Status {
		case model.RequestPending:
			return nil, pendingConflict(r, callerID)
		case model.RequestAccepted:
			// 联系人已不存在的 accepted 申请：删除后重新申请
			if err := backend.Requests.Delete(ctx, r.ID); err != nil {
				return nil, err
			}
			zap.L().Warn("清理陈旧的已接受申请",
				zap.String("request_id", r.ID),
				zap.String("requester_id", r.RequesterID),
				zap.String("recipient_id", r.RecipientID),
			)
			s.emit(ctx, scope, model.EventRepairStaleRequest, recipientID, r.ID)
		}
	}

	// 7. 插入，唯一约束冲突时有界重试
	outcome := retry.Bounded(ctx, s.attempts, func(ctx context.Context, attempt int) retry.Outcome[*model.ContactRequest] {
		return s.insert(ctx, backend, &model.ContactRequest{
			RequesterID: callerID,
			RecipientID: recipientID,
			Message:     req.Message,
			Status:      model.RequestPending,
			Region:      scope.Region,
		}, attempt)
	})
	created, err := outcome.Unwrap()
	if err != nil {
		return nil, err
	}

	s.emit(ctx, scope, model.EventRequestCreated, recipientID, created.ID)
	callerSummary, recipientSummary := scope.Profile.Summary(), recipient.Summary()
	return &model.ContactRequestView{
		ContactRequest: *created,
		Requester:      &callerSummary,
		Recipient:      &recipientSummary,
	}, nil
}

// insert 单次插入尝试
// 唯一约束冲突说明有并发请求抢先写入，重新读取冲突行再决定结果
func (s *contactService) insert(ctx context.Context, backend *store.Backend, next *model.ContactRequest, attempt int) retry.Outcome[*model.ContactRequest] {
	err := backend.Requests.Create(ctx, next)
	if err == nil {
		return retry.Ok(next)
	}
	if !errorx.IsDuplicate(err) {
		return retry.Transient[*model.ContactRequest](err)
	}

	zap.L().Info("好友申请插入冲突，重新读取",
		zap.String("requester_id", next.RequesterID),
		zap.String("recipient_id", next.RecipientID),
		zap.Int("attempt", attempt),
	)
	active, err := backend.Requests.FindActiveBetween(ctx, next.RequesterID, next.RecipientID)
	if err != nil {
		return retry.Transient[*model.ContactRequest](err)
	}
	if len(active) == 0 {
		// 冲突行已被处理掉，再试一次
		return retry.Again[*model.ContactRequest](errorx.New(errorx.CodeDuplicate, "冲突的申请已不存在"))
	}
	conflict := active[0]
	if conflict.Status == model.RequestPending {
		return retry.Conflict[*model.ContactRequest](pendingConflict(&conflict, next.RequesterID))
	}

	// accepted：并发接受后联系人已建立则是真实冲突，否则就地改写为新的 pending
	contacts, err := backend.Contacts.FindBetween(ctx, next.RequesterID, next.RecipientID)
	if err != nil {
		return retry.Transient[*model.ContactRequest](err)
	}
	if len(contacts) > 0 {
		return retry.Conflict[*model.ContactRequest](errorx.ErrContactExists)
	}
	ok, err := backend.Requests.Reopen(ctx, conflict.ID, next)
	if err != nil {
		return retry.Transient[*model.ContactRequest](err)
	}
	if !ok {
		return retry.Again[*model.ContactRequest](errorx.New(errorx.CodeConflict, "冲突的申请状态已变化"))
	}
	zap.L().Warn("重置陈旧的已接受申请", zap.String("request_id", conflict.ID))
	return retry.Ok(next)
}

// Respond 接收人处理申请
func (s *contactService) Respond(ctx context.Context, scope *region.Resolution, requestID string, req request.RespondContactRequest) (*respond.RespondContactResult, error) {
	backend := scope.Backend
	callerID := scope.UserID()

	cr, err := retry.Read(ctx, s.attempts, func(ctx context.Context) (*model.ContactRequest, error) {
		return backend.Requests.FindByID(ctx, requestID)
	})
	if err != nil {
		return nil, err
	}
	if cr.RecipientID != callerID {
		return nil, errorx.ErrNotRequestParty
	}
	if cr.Status != model.RequestPending {
		return nil, errorx.ErrNotPending
	}

	var ok bool
	accept := req.Action == "accept"
	if accept {
		ok, err = backend.Requests.Accept(ctx, requestID)
	} else {
		ok, err = backend.Requests.Transition(ctx, requestID, model.RequestPending, model.RequestRejected)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorx.ErrNotPending
	}

	cr, err = retry.Read(ctx, s.attempts, func(ctx context.Context) (*model.ContactRequest, error) {
		return backend.Requests.FindByID(ctx, requestID)
	})
	if err != nil {
		return nil, err
	}
	views, err := s.expand(ctx, backend, []model.ContactRequest{*cr})
	if err != nil {
		return nil, err
	}
	result := &respond.RespondContactResult{Request: &views[0]}

	if !accept {
		s.emit(ctx, scope, model.EventRequestRejected, cr.RequesterID, cr.ID)
		return result, nil
	}

	s.emit(ctx, scope, model.EventRequestAccepted, cr.RequesterID, cr.ID)
	s.lists.Invalidate(ctx, scope.Region, cr.RequesterID, cr.RecipientID)
	contacts, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.Contact, error) {
		return backend.Contacts.FindBetween(ctx, callerID, cr.RequesterID)
	})
	if err != nil {
		return nil, err
	}
	for _, c := range contacts {
		if c.UserID == callerID {
			view := model.ContactView{Contact: c}
			if views[0].Requester != nil {
				view.Profile = *views[0].Requester
			}
			result.Contact = &view
		}
	}
	return result, nil
}

// Cancel 申请人撤回自己的 pending 申请
func (s *contactService) Cancel(ctx context.Context, scope *region.Resolution, requestID string) (*model.ContactRequestView, error) {
	backend := scope.Backend
	cr, err := retry.Read(ctx, s.attempts, func(ctx context.Context) (*model.ContactRequest, error) {
		return backend.Requests.FindByID(ctx, requestID)
	})
	if err != nil {
		return nil, err
	}
	if cr.RequesterID != scope.UserID() {
		return nil, errorx.ErrNotRequestParty
	}
	ok, err := backend.Requests.Transition(ctx, requestID, model.RequestPending, model.RequestCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorx.ErrNotPending
	}
	cr.Status = model.RequestCancelled
	cr.ActivePairKey = nil
	s.emit(ctx, scope, model.EventRequestCancelled, cr.RecipientID, cr.ID)

	views, err := s.expand(ctx, backend, []model.ContactRequest{*cr})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List 按方向与状态列出申请，默认收到的全部申请
func (s *contactService) List(ctx context.Context, scope *region.Resolution, query request.ListContactRequestsQuery) ([]model.ContactRequestView, error) {
	dir := store.DirectionReceived
	if query.Type == string(store.DirectionSent) {
		dir = store.DirectionSent
	}
	var status model.RequestStatus
	if query.Status != "" && query.Status != "all" {
		status = model.RequestStatus(query.Status)
	}

	reqs, err := retry.Read(ctx, s.attempts, func(ctx context.Context) ([]model.ContactRequest, error) {
		return scope.Backend.Requests.List(ctx, scope.UserID(), dir, status)
	})
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, scope.Backend, reqs)
}

// expand 批量取出双方资料，两个后端的字段差异已在适配器内归一
func (s *contactService) expand(ctx context.Context, backend *store.Backend, reqs []model.ContactRequest) ([]model.ContactRequestView, error) {
	views := make([]model.ContactRequestView, 0, len(reqs))
	if len(reqs) == 0 {
		return views, nil
	}
	idSet := make(map[string]struct{}, len(reqs)*2)
	ids := make([]string, 0, len(reqs)*2)
	for _, r := range reqs {
		for _, id := range []string{r.RequesterID, r.RecipientID} {
			if _, ok := idSet[id]; !ok {
				idSet[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	summaries, err := summariesByID(ctx, backend, s.attempts, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		v := model.ContactRequestView{ContactRequest: r}
		if p, ok := summaries[r.RequesterID]; ok {
			v.Requester = &p
		}
		if p, ok := summaries[r.RecipientID]; ok {
			v.Recipient = &p
		}
		views = append(views, v)
	}
	return views, nil
}

// findPeer 在调用方的后端中查找对方
// 本后端找不到时再到其他分区确认，存在即为跨分区，否则为用户不存在
func (s *contactService) findPeer(ctx context.Context, scope *region.Resolution, peerID string) (*model.UserProfile, error) {
	return FindPeer(ctx, s.router, scope, s.attempts, peerID)
}

// FindPeer 供会话服务复用的对方资料查找
func FindPeer(ctx context.Context, router *region.Router, scope *region.Resolution, attempts int, peerID string) (*model.UserProfile, error) {
	peer, err := retry.Read(ctx, attempts, func(ctx context.Context) (*model.UserProfile, error) {
		return scope.Backend.Users.FindByID(ctx, peerID)
	})
	if err == nil {
		if peer.Region != scope.Region {
			return nil, errorx.ErrRegionMismatch
		}
		return peer, nil
	}
	if !errorx.IsNotFound(err) {
		return nil, err
	}
	if router != nil {
		if _, found, lerr := router.Locate(ctx, scope.Region, peerID); lerr != nil {
			return nil, lerr
		} else if found {
			return nil, errorx.ErrRegionMismatch
		}
	}
	return nil, errorx.ErrUserNotExist
}

func summariesByID(ctx context.Context, backend *store.Backend, attempts int, ids []string) (map[string]model.ProfileSummary, error) {
	users, err := retry.Read(ctx, attempts, func(ctx context.Context) ([]model.UserProfile, error) {
		return backend.Users.FindByIDs(ctx, ids)
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.ProfileSummary, len(users))
	for i := range users {
		out[users[i].ID] = users[i].Summary()
	}
	return out, nil
}

// pendingConflict 根据 pending 申请的方向给出 sent/received
func pendingConflict(r *model.ContactRequest, callerID string) error {
	if r.RequesterID == callerID {
		return errorx.ErrRequestSent
	}
	return errorx.ErrRequestReceived
}

// asBadRequest 好友申请接口的业务规则拒绝统一返回 400
func asBadRequest(err error) error {
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) && codeErr.Rule != "" {
		return codeErr.WithStatus(http.StatusBadRequest)
	}
	return err
}

func (s *contactService) emit(ctx context.Context, scope *region.Resolution, typ, targetID, entityID string) {
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
		event.PairKey = model.PairKey(scope.UserID(), targetID)
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		zap.L().Error("发布关系事件失败", zap.String("type", typ), zap.Error(err))
	}
}
