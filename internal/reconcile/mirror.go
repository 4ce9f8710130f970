// Package reconcile 客户端会话缓存的本地镜像
// 镜像先做乐观更新，拿到服务端返回的完整实体后提交，失败则回滚；
// 合并服务端列表时与服务端使用同一套私聊去重规则，避免两边选出不同的规范会话
package reconcile

import (
	"strconv"
	"sync"
	"time"

	"regionchat_server/internal/model"
	"regionchat_server/pkg/errorx"
)

// tempPrefix 乐观创建的会话在提交前使用的临时 id 前缀
const tempPrefix = "tmp-"

// ErrUnknownToken 令牌不存在或已经提交/回滚过
var ErrUnknownToken = errorx.New(errorx.CodeNotFound, "乐观更新不存在或已结束")

// Token 一次乐观更新的令牌
type Token uint64

type opKind int

const (
	opUpsert opKind = iota
	opRemove
)

// pendingOp 未结束的乐观更新，prev 为更新前的实体，用于回滚
type pendingOp struct {
	kind opKind
	id   string
	prev *model.Conversation
}

// Mirror 会话列表镜像
// 首次 Load 后生效，Invalidate 或超过 ttl 后失效，失效后调用方应重新拉取并 Load
type Mirror struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	loaded   bool
	loadedAt time.Time
	items    map[string]model.Conversation
	pending  map[Token]pendingOp
	seq      uint64
}

// New 创建镜像，ttl <= 0 表示不过期
func New(ttl time.Duration) *Mirror {
	return &Mirror{
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]model.Conversation),
		pending: make(map[Token]pendingOp),
	}
}

// Load 用服务端列表整体替换镜像，未结束的乐观更新一并丢弃
func (m *Mirror) Load(server []model.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]model.Conversation, len(server))
	for _, c := range server {
		m.items[c.ID] = c
	}
	m.pending = make(map[Token]pendingOp)
	m.loaded = true
	m.loadedAt = m.now()
}

// Valid 镜像是否可直接使用
func (m *Mirror) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validLocked()
}

func (m *Mirror) validLocked() bool {
	if !m.loaded {
		return false
	}
	return m.ttl <= 0 || m.now().Sub(m.loadedAt) < m.ttl
}

// Invalidate 服务端关系变化后调用，下次读取前需要重新 Load
func (m *Mirror) Invalidate() {
	m.mu.Lock()
	m.loaded = false
	m.mu.Unlock()
}

// Snapshot 返回去重并排序后的列表副本
func (m *Mirror) Snapshot() []model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

func (m *Mirror) viewLocked() []model.Conversation {
	out := make([]model.Conversation, 0, len(m.items))
	for _, c := range m.items {
		out = append(out, c)
	}
	// map 遍历无序，先排成确定顺序再去重
	model.SortCanonical(out)
	out = model.DedupeDirect(out)
	model.SortByActivity(out)
	return out
}

// Apply 乐观写入会话；id 为空时分配临时 id，提交时替换为服务端 id
// 返回的会话带有实际使用的 id
func (m *Mirror) Apply(conv model.Conversation) (Token, model.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	tok := Token(m.seq)
	if conv.ID == "" {
		conv.ID = tempPrefix + strconv.FormatUint(m.seq, 10)
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = m.now().UTC()
	}
	op := pendingOp{kind: opUpsert, id: conv.ID}
	if prev, ok := m.items[conv.ID]; ok {
		op.prev = &prev
	}
	m.items[conv.ID] = conv
	m.pending[tok] = op
	return tok, conv
}

// ApplyRemove 乐观移除会话（隐藏、删除）
func (m *Mirror) ApplyRemove(id string) Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	tok := Token(m.seq)
	op := pendingOp{kind: opRemove, id: id}
	if prev, ok := m.items[id]; ok {
		op.prev = &prev
		delete(m.items, id)
	}
	m.pending[tok] = op
	return tok
}

// Commit 用服务端返回的实体确认乐观更新
// 对乐观写入，临时 id 的条目被替换为服务端实体；服务端返回的若是已有的规范会话，
// 去重后只保留这一个
func (m *Mirror) Commit(tok Token, authoritative *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.pending[tok]
	if !ok {
		return ErrUnknownToken
	}
	delete(m.pending, tok)
	if op.kind == opRemove {
		return nil
	}
	if authoritative == nil {
		return errorx.New(errorx.CodeInvalidParam, "提交乐观写入需要服务端实体")
	}
	if op.id != authoritative.ID {
		delete(m.items, op.id)
	}
	m.items[authoritative.ID] = *authoritative
	return nil
}

// Rollback 撤销乐观更新，恢复更新前的状态
func (m *Mirror) Rollback(tok Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.pending[tok]
	if !ok {
		return ErrUnknownToken
	}
	delete(m.pending, tok)
	if op.prev != nil {
		m.items[op.id] = *op.prev
		return nil
	}
	delete(m.items, op.id)
	return nil
}

// Merge 合并服务端列表
// 服务端列表是权威结果，镜像中不在其中的条目被丢弃，只保留仍未结束的乐观写入；
// 乐观移除的条目不会被服务端列表重新带回
func (m *Mirror) Merge(server []model.Conversation) []model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := make(map[string]bool, len(m.pending))
	removed := make(map[string]bool)
	for _, op := range m.pending {
		switch op.kind {
		case opUpsert:
			keep[op.id] = true
		case opRemove:
			removed[op.id] = true
		}
	}

	items := make(map[string]model.Conversation, len(server)+len(keep))
	for id := range keep {
		if c, ok := m.items[id]; ok {
			items[id] = c
		}
	}
	for _, c := range server {
		if removed[c.ID] {
			continue
		}
		// 服务端实体覆盖同 id 的乐观版本
		items[c.ID] = c
	}
	m.items = items
	m.loaded = true
	m.loadedAt = m.now()
	return m.viewLocked()
}
