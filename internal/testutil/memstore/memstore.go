// Package memstore 内存版分区后端，供 service/handler 测试使用
// 语义与关系库适配器保持一致：唯一约束、条件更新、拉黑行保留；
// 所有读写都返回深拷贝，调用方修改返回值不会影响存储
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"regionchat_server/internal/model"
	"regionchat_server/internal/store"
	"regionchat_server/pkg/errorx"
)

// Store 一个分区后端的内存实现
type Store struct {
	mu sync.Mutex

	kind       store.Kind
	seq        int
	clock      time.Time
	users      map[string]model.UserProfile
	workspaces map[string]map[string]bool
	contacts   map[string]model.Contact // key: user_id|contact_user_id
	requests   map[string]model.ContactRequest
	convs      map[string]model.Conversation
	members    map[string]map[string]model.ConversationMember

	// 故障注入
	// FailBulkInsert 批量插入只写入第一行后报错
	FailBulkInsert bool
	// DropMembers 逐行插入时静默丢弃的用户
	DropMembers map[string]bool
	// BeforeRequestCreate 插入申请前回调（不持锁），用于模拟并发写入
	BeforeRequestCreate func(req model.ContactRequest)
	// ReadFailures 接下来多少次读操作返回瞬时错误
	ReadFailures int
}

// New 创建空的内存后端
func New(kind store.Kind) *Store {
	return &Store{
		kind:       kind,
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		users:      make(map[string]model.UserProfile),
		workspaces: make(map[string]map[string]bool),
		contacts:   make(map[string]model.Contact),
		requests:   make(map[string]model.ContactRequest),
		convs:      make(map[string]model.Conversation),
		members:    make(map[string]map[string]model.ConversationMember),
	}
}

// Backend 以 store.Backend 的形式暴露
func (s *Store) Backend() *store.Backend {
	return &store.Backend{
		Kind:          s.kind,
		Users:         userStore{s},
		Contacts:      contactStore{s},
		Requests:      requestStore{s},
		Conversations: conversationStore{s},
		Members:       memberStore{s},
	}
}

// now 单调递增的时钟，保证创建顺序可比较
func (s *Store) now() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%06d", prefix, s.seq)
}

// readFault 消耗一次注入的读故障
func (s *Store) readFault() error {
	if s.ReadFailures > 0 {
		s.ReadFailures--
		return errorx.New(errorx.CodeDBError, "注入的读故障")
	}
	return nil
}

// AddUser 写入用户资料，Privacy 为空时为 everyone
func (s *Store) AddUser(u model.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Privacy == "" {
		u.Privacy = model.PrivacyEveryone
	}
	s.users[u.ID] = u
}

// AddWorkspaceMember 加入工作区；从未添加过任何工作区时视为不支持工作区，成员检查恒为 true
func (s *Store) AddWorkspaceMember(workspaceID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspaces[workspaceID] == nil {
		s.workspaces[workspaceID] = make(map[string]bool)
	}
	s.workspaces[workspaceID][userID] = true
}

// PutRequest 直接写入申请，用于构造陈旧数据
func (s *Store) PutRequest(r model.ContactRequest) model.ContactRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = s.nextID("R")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
		r.UpdatedAt = r.CreatedAt
	}
	r.SyncActivePairKey()
	s.requests[r.ID] = r
	return r
}

// PutConversation 直接写入会话与成员，用于构造重复会话
func (s *Store) PutConversation(c model.Conversation) model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = s.nextID("S")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	members := c.Members
	c.Members = nil
	s.convs[c.ID] = c
	for _, m := range members {
		m.ConversationID = c.ID
		s.memberMap(c.ID)[m.UserID] = m
	}
	return s.loadConv(c.ID)
}

// Requests 全部申请，按创建时间排序
func (s *Store) Requests() []model.ContactRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ContactRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, copyRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Contacts 全部联系人行
func (s *Store) Contacts() []model.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Conversations 全部会话（含成员）
func (s *Store) Conversations() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, 0, len(s.convs))
	for id := range s.convs {
		out = append(out, s.loadConv(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RowCount 三类关系数据的总行数，用于断言没有产生写入
func (s *Store) RowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.contacts) + len(s.requests) + len(s.convs)
	for _, m := range s.members {
		n += len(m)
	}
	return n
}

func (s *Store) memberMap(conversationID string) map[string]model.ConversationMember {
	m := s.members[conversationID]
	if m == nil {
		m = make(map[string]model.ConversationMember)
		s.members[conversationID] = m
	}
	return m
}

// loadConv 组装会话及成员的深拷贝，调用方持锁
func (s *Store) loadConv(id string) model.Conversation {
	c := copyConv(s.convs[id])
	c.Members = nil
	for _, m := range s.members[id] {
		c.Members = append(c.Members, copyMember(m))
	}
	sort.Slice(c.Members, func(i, j int) bool {
		if !c.Members[i].JoinedAt.Equal(c.Members[j].JoinedAt) {
			return c.Members[i].JoinedAt.Before(c.Members[j].JoinedAt)
		}
		return c.Members[i].UserID < c.Members[j].UserID
	})
	return c
}

func contactKey(userID, contactID string) string {
	return userID + "|" + contactID
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyRequest(r model.ContactRequest) model.ContactRequest {
	if r.ActivePairKey != nil {
		k := *r.ActivePairKey
		r.ActivePairKey = &k
	}
	return r
}

func copyConv(c model.Conversation) model.Conversation {
	c.LastMessageAt = copyTime(c.LastMessageAt)
	c.DeletedAt = copyTime(c.DeletedAt)
	return c
}

func copyMember(m model.ConversationMember) model.ConversationMember {
	m.DeletedAt = copyTime(m.DeletedAt)
	return m
}

type userStore struct{ s *Store }

func (u userStore) FindByID(_ context.Context, id string) (*model.UserProfile, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	p, ok := s.users[id]
	if !ok {
		return nil, errorx.ErrUserNotExist
	}
	return &p, nil
}

func (u userStore) FindByIDs(_ context.Context, ids []string) ([]model.UserProfile, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	out := make([]model.UserProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.users[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (u userStore) IsWorkspaceMember(_ context.Context, workspaceID, userID string) (bool, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.workspaces) == 0 {
		return true, nil
	}
	return s.workspaces[workspaceID][userID], nil
}

type contactStore struct{ s *Store }

func (c contactStore) FindBetween(_ context.Context, a, b string) ([]model.Contact, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	var out []model.Contact
	for _, k := range []string{contactKey(a, b), contactKey(b, a)} {
		if row, ok := s.contacts[k]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (c contactStore) ListByUser(_ context.Context, userID string) ([]model.Contact, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	var out []model.Contact
	for _, row := range s.contacts {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c contactStore) CreatePair(_ context.Context, a, b string) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createPairLocked(a, b)
	return nil
}

func (s *Store) createPairLocked(a, b string) {
	for _, dir := range [][2]string{{a, b}, {b, a}} {
		k := contactKey(dir[0], dir[1])
		if _, ok := s.contacts[k]; ok {
			continue
		}
		ts := s.now()
		s.contacts[k] = model.Contact{ID: s.nextID("C"), UserID: dir[0], ContactUserID: dir[1], CreatedAt: ts, UpdatedAt: ts}
	}
}

func (c contactStore) DeletePair(_ context.Context, a, b string) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range []string{contactKey(a, b), contactKey(b, a)} {
		if row, ok := s.contacts[k]; ok && !row.IsBlocked {
			delete(s.contacts, k)
		}
	}
	return nil
}

func (c contactStore) SetBlocked(_ context.Context, userID, contactID string, blocked bool) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	k := contactKey(userID, contactID)
	row, ok := s.contacts[k]
	if !blocked {
		if !ok {
			return nil
		}
		if _, reverse := s.contacts[contactKey(contactID, userID)]; !reverse {
			delete(s.contacts, k)
			return nil
		}
		row.IsBlocked = false
		row.UpdatedAt = s.now()
		s.contacts[k] = row
		return nil
	}
	if !ok {
		ts := s.now()
		row = model.Contact{ID: s.nextID("C"), UserID: userID, ContactUserID: contactID, CreatedAt: ts}
	}
	row.IsBlocked = true
	row.UpdatedAt = s.now()
	s.contacts[k] = row
	return nil
}

func (c contactStore) SetFavorite(_ context.Context, userID, contactID string, favorite bool) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	k := contactKey(userID, contactID)
	row, ok := s.contacts[k]
	if !ok || row.IsBlocked {
		return errorx.Newf(errorx.CodeNotFound, "联系人不存在 user_id=%s contact_id=%s", userID, contactID)
	}
	row.IsFavorite = favorite
	s.contacts[k] = row
	return nil
}

type requestStore struct{ s *Store }

func (r requestStore) FindByID(_ context.Context, id string) (*model.ContactRequest, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	req, ok := s.requests[id]
	if !ok {
		return nil, errorx.Newf(errorx.CodeNotFound, "申请不存在 id=%s", id)
	}
	req = copyRequest(req)
	return &req, nil
}

func (r requestStore) FindActiveBetween(_ context.Context, a, b string) ([]model.ContactRequest, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	var out []model.ContactRequest
	for _, req := range s.requests {
		if req.Involves(a, b) && req.Status.Active() {
			out = append(out, copyRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r requestStore) Create(_ context.Context, req *model.ContactRequest) error {
	s := r.s
	if hook := s.BeforeRequestCreate; hook != nil {
		hook(*req)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req.SyncActivePairKey()
	if req.ActivePairKey != nil {
		for _, other := range s.requests {
			if other.ActivePairKey != nil && *other.ActivePairKey == *req.ActivePairKey {
				return errorx.Newf(errorx.CodeDuplicate, "active_pair_key 冲突 %s", *req.ActivePairKey)
			}
		}
	}
	if req.ID == "" {
		req.ID = s.nextID("R")
	}
	ts := s.now()
	req.CreatedAt, req.UpdatedAt = ts, ts
	s.requests[req.ID] = copyRequest(*req)
	return nil
}

func (r requestStore) Delete(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
	return nil
}

func (r requestStore) Transition(_ context.Context, id string, from, to model.RequestStatus) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, from, to), nil
}

func (s *Store) transitionLocked(id string, from, to model.RequestStatus) bool {
	req, ok := s.requests[id]
	if !ok || req.Status != from {
		return false
	}
	req.Status = to
	req.UpdatedAt = s.now()
	req.SyncActivePairKey()
	s.requests[id] = req
	return true
}

func (r requestStore) Reopen(_ context.Context, id string, next *model.ContactRequest) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.Status != model.RequestAccepted {
		return false, nil
	}
	ts := s.now()
	next.ID = id
	next.Status = model.RequestPending
	next.CreatedAt, next.UpdatedAt = ts, ts
	next.SyncActivePairKey()
	s.requests[id] = copyRequest(*next)
	return true, nil
}

func (r requestStore) Accept(_ context.Context, id string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return false, errorx.Newf(errorx.CodeNotFound, "申请不存在 id=%s", id)
	}
	if !s.transitionLocked(id, model.RequestPending, model.RequestAccepted) {
		return false, nil
	}
	s.createPairLocked(req.RequesterID, req.RecipientID)
	return true, nil
}

func (r requestStore) List(_ context.Context, userID string, dir store.Direction, status model.RequestStatus) ([]model.ContactRequest, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	var out []model.ContactRequest
	for _, req := range s.requests {
		owner := req.RecipientID
		if dir == store.DirectionSent {
			owner = req.RequesterID
		}
		if owner != userID || (status != "" && req.Status != status) {
			continue
		}
		out = append(out, copyRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type conversationStore struct{ s *Store }

func (c conversationStore) FindDirect(_ context.Context, memberKey string) ([]model.Conversation, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	var out []model.Conversation
	for id, conv := range s.convs {
		if conv.Type == model.ConversationDirect && conv.MemberKey == memberKey && conv.DeletedAt == nil {
			out = append(out, s.loadConv(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c conversationStore) FindByID(_ context.Context, id string) (*model.Conversation, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	if _, ok := s.convs[id]; !ok {
		return nil, errorx.Newf(errorx.CodeNotFound, "会话不存在 id=%s", id)
	}
	conv := s.loadConv(id)
	return &conv, nil
}

func (c conversationStore) Create(_ context.Context, conv *model.Conversation) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = s.nextID("S")
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now()
	}
	row := copyConv(*conv)
	row.Members = nil
	s.convs[conv.ID] = row
	return nil
}

func (c conversationStore) ListForUser(_ context.Context, userID, workspaceID string) ([]model.Conversation, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	var out []model.Conversation
	for id, conv := range s.convs {
		if conv.DeletedAt != nil {
			continue
		}
		if _, ok := s.members[id][userID]; !ok {
			continue
		}
		if workspaceID != "" && conv.WorkspaceID != workspaceID && conv.Type != model.ConversationDirect {
			continue
		}
		out = append(out, s.loadConv(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c conversationStore) SetHidden(_ context.Context, conversationID, userID string, hidden bool) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[conversationID][userID]; ok {
		m.IsHidden = hidden
		s.members[conversationID][userID] = m
	}
	return nil
}

func (c conversationStore) MarkMemberDeleted(_ context.Context, conversationID, userID string) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[conversationID][userID]; ok && m.DeletedAt == nil {
		ts := s.now()
		m.DeletedAt = &ts
		s.members[conversationID][userID] = m
	}
	return nil
}

type memberStore struct{ s *Store }

func (m memberStore) BulkInsert(_ context.Context, members []model.ConversationMember) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(members) == 0 {
		return nil
	}
	if s.FailBulkInsert {
		first := members[0]
		s.memberMap(first.ConversationID)[first.UserID] = copyMember(first)
		return errorx.New(errorx.CodeDBError, "注入的批量插入故障")
	}
	for _, row := range members {
		if _, ok := s.members[row.ConversationID][row.UserID]; ok {
			return errorx.Newf(errorx.CodeDuplicate, "成员已存在 %s/%s", row.ConversationID, row.UserID)
		}
	}
	for _, row := range members {
		s.memberMap(row.ConversationID)[row.UserID] = copyMember(row)
	}
	return nil
}

func (m memberStore) Insert(_ context.Context, member model.ConversationMember) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DropMembers[member.UserID] {
		return nil
	}
	if _, ok := s.members[member.ConversationID][member.UserID]; ok {
		return errorx.Newf(errorx.CodeDuplicate, "成员已存在 %s/%s", member.ConversationID, member.UserID)
	}
	s.memberMap(member.ConversationID)[member.UserID] = copyMember(member)
	return nil
}

func (m memberStore) ListMembers(_ context.Context, conversationID string) ([]model.ConversationMember, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault(); err != nil {
		return nil, err
	}
	out := make([]model.ConversationMember, 0, len(s.members[conversationID]))
	for _, row := range s.members[conversationID] {
		out = append(out, copyMember(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

var (
	_ store.UserStore           = userStore{}
	_ store.ContactStore        = contactStore{}
	_ store.ContactRequestStore = requestStore{}
	_ store.ConversationStore   = conversationStore{}
	_ store.MemberStore         = memberStore{}
)
