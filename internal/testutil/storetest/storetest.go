// Package storetest 两个后端共用的能力接口契约测试
// 内存实现在单元测试中运行，关系库与文档库适配器在 integration 标签下对真实数据库运行
package storetest

import (
	"context"
	"testing"
	"time"

	"regionchat_server/internal/model"
	"regionchat_server/internal/store"
	"regionchat_server/pkg/errorx"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Harness 被测后端
type Harness struct {
	Backend *store.Backend
	// Seed 写入用户资料，各后端的存储格式不同
	Seed func(t *testing.T, users ...model.UserProfile)
}

// Run 执行全部契约用例
// 每个用例使用带随机前缀的用户 id，可以在同一个数据库上重复运行
func Run(t *testing.T, h Harness) {
	t.Run("users", func(t *testing.T) { testUsers(t, h) })
	t.Run("contacts", func(t *testing.T) { testContacts(t, h) })
	t.Run("requests", func(t *testing.T) { testRequests(t, h) })
	t.Run("conversations", func(t *testing.T) { testConversations(t, h) })
}

// names 生成本用例独占的用户 id
func names() func(string) string {
	prefix := uuid.NewString()[:8]
	return func(name string) string { return prefix + "-" + name }
}

func testUsers(t *testing.T, h Harness) {
	ctx := context.Background()
	n := names()
	h.Seed(t,
		model.UserProfile{ID: n("alice"), Region: model.RegionCN, Privacy: model.PrivacyEveryone},
		model.UserProfile{ID: n("bob"), Region: model.RegionCN, Privacy: model.PrivacyContactsOnly},
	)

	alice, err := h.Backend.Users.FindByID(ctx, n("alice"))
	require.NoError(t, err)
	assert.Equal(t, n("alice"), alice.ID)
	assert.Equal(t, model.RegionCN, alice.Region)
	assert.True(t, alice.AllowsNonContacts())

	bob, err := h.Backend.Users.FindByID(ctx, n("bob"))
	require.NoError(t, err)
	assert.False(t, bob.AllowsNonContacts())

	_, err = h.Backend.Users.FindByID(ctx, n("ghost"))
	assert.True(t, errorx.IsNotFound(err), "%v", err)

	users, err := h.Backend.Users.FindByIDs(ctx, []string{n("alice"), n("ghost"), n("bob")})
	require.NoError(t, err)
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []string{n("alice"), n("bob")}, ids)
}

func row(rows []model.Contact, userID, contactID string) (model.Contact, bool) {
	for _, r := range rows {
		if r.UserID == userID && r.ContactUserID == contactID {
			return r, true
		}
	}
	return model.Contact{}, false
}

func testContacts(t *testing.T, h Harness) {
	ctx := context.Background()
	contacts := h.Backend.Contacts
	n := names()
	a, b, c := n("a"), n("b"), n("c")

	require.NoError(t, contacts.CreatePair(ctx, a, b))
	require.NoError(t, contacts.CreatePair(ctx, b, a), "重复建立无副作用")
	rows, err := contacts.FindBetween(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.False(t, r.IsBlocked)
		assert.NotEmpty(t, r.ID)
	}

	listed, err := contacts.ListByUser(ctx, a)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, b, listed[0].ContactUserID)

	require.NoError(t, contacts.SetFavorite(ctx, a, b, true))
	rows, _ = contacts.FindBetween(ctx, a, b)
	ab, _ := row(rows, a, b)
	assert.True(t, ab.IsFavorite)
	ba, _ := row(rows, b, a)
	assert.False(t, ba.IsFavorite, "星标只作用于自己一侧")

	err = contacts.SetFavorite(ctx, a, c, true)
	assert.True(t, errorx.IsNotFound(err), "%v", err)

	// 拉黑后解除好友，拉黑行保留
	require.NoError(t, contacts.SetBlocked(ctx, a, b, true))
	assert.True(t, errorx.IsNotFound(contacts.SetFavorite(ctx, a, b, false)))
	require.NoError(t, contacts.DeletePair(ctx, a, b))
	rows, err = contacts.FindBetween(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a, rows[0].UserID)
	assert.True(t, rows[0].IsBlocked)

	// 没有反向行时取消拉黑即删除
	require.NoError(t, contacts.SetBlocked(ctx, a, b, false))
	rows, err = contacts.FindBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// 拉黑陌生人后建立联系人，不覆盖拉黑标记
	require.NoError(t, contacts.SetBlocked(ctx, a, c, true))
	require.NoError(t, contacts.CreatePair(ctx, a, c))
	rows, _ = contacts.FindBetween(ctx, a, c)
	require.Len(t, rows, 2)
	ac, _ := row(rows, a, c)
	assert.True(t, ac.IsBlocked)

	require.NoError(t, contacts.SetBlocked(ctx, a, c, false))
	rows, _ = contacts.FindBetween(ctx, a, c)
	require.Len(t, rows, 2, "有反向行时只清除标记")
	ac, _ = row(rows, a, c)
	assert.False(t, ac.IsBlocked)
}

func testRequests(t *testing.T, h Harness) {
	ctx := context.Background()
	requests := h.Backend.Requests
	n := names()
	a, b := n("a"), n("b")

	r1 := &model.ContactRequest{RequesterID: a, RecipientID: b, Message: "hi", Status: model.RequestPending, Region: model.RegionCN}
	require.NoError(t, requests.Create(ctx, r1))
	assert.NotEmpty(t, r1.ID)
	assert.False(t, r1.CreatedAt.IsZero())

	// active_pair_key 与方向无关
	reverse := &model.ContactRequest{RequesterID: b, RecipientID: a, Status: model.RequestPending, Region: model.RegionCN}
	err := requests.Create(ctx, reverse)
	assert.True(t, errorx.IsDuplicate(err), "%v", err)

	active, err := requests.FindActiveBetween(ctx, b, a)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, r1.ID, active[0].ID)

	got, err := requests.FindByID(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, got.Status)
	assert.Equal(t, "hi", got.Message)

	ok, err := requests.Transition(ctx, r1.ID, model.RequestAccepted, model.RequestRejected)
	require.NoError(t, err)
	assert.False(t, ok, "当前状态不符时不更新")
	ok, err = requests.Transition(ctx, r1.ID, model.RequestPending, model.RequestRejected)
	require.NoError(t, err)
	assert.True(t, ok)

	active, err = requests.FindActiveBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Empty(t, active)

	// 拒绝后让出唯一名额
	r2 := &model.ContactRequest{RequesterID: a, RecipientID: b, Status: model.RequestPending, Region: model.RegionCN}
	require.NoError(t, requests.Create(ctx, r2))

	ok, err = requests.Accept(ctx, r2.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	rows, err := h.Backend.Contacts.FindBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "接受时建立双向联系人")

	ok, err = requests.Accept(ctx, r2.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = requests.Accept(ctx, n("missing"))
	assert.True(t, errorx.IsNotFound(err), "%v", err)

	next := &model.ContactRequest{RequesterID: b, RecipientID: a, Message: "again", Region: model.RegionCN}
	ok, err = requests.Reopen(ctx, r2.ID, next)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r2.ID, next.ID)
	assert.Equal(t, model.RequestPending, next.Status)

	got, err = requests.FindByID(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, b, got.RequesterID)
	assert.Equal(t, model.RequestPending, got.Status)
	assert.Equal(t, "again", got.Message)

	ok, err = requests.Reopen(ctx, r2.ID, &model.ContactRequest{RequesterID: a, RecipientID: b, Region: model.RegionCN})
	require.NoError(t, err)
	assert.False(t, ok, "只有 accepted 的申请可以重置")

	received, err := requests.List(ctx, a, store.DirectionReceived, "")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, r2.ID, received[0].ID)

	sent, err := requests.List(ctx, b, store.DirectionSent, model.RequestPending)
	require.NoError(t, err)
	require.Len(t, sent, 1)

	rejected, err := requests.List(ctx, a, store.DirectionSent, model.RequestRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, r1.ID, rejected[0].ID)

	require.NoError(t, requests.Delete(ctx, r1.ID))
	_, err = requests.FindByID(ctx, r1.ID)
	assert.True(t, errorx.IsNotFound(err), "%v", err)
	assert.NoError(t, requests.Delete(ctx, r1.ID), "删除不存在的申请不报错")
}

func testConversations(t *testing.T, h Harness) {
	ctx := context.Background()
	convs := h.Backend.Conversations
	members := h.Backend.Members
	n := names()
	a, b, c := n("a"), n("b"), n("c")
	key := model.DirectMemberKey(a, b)
	joined := time.Now().UTC().Truncate(time.Millisecond)

	direct := &model.Conversation{Type: model.ConversationDirect, MemberKey: key, IsPrivate: true, CreatedBy: a}
	require.NoError(t, convs.Create(ctx, direct))
	require.NotEmpty(t, direct.ID)

	rows := model.NewMembers(direct.ID, []string{a, b}, joined)
	require.NoError(t, members.BulkInsert(ctx, rows))
	assert.Error(t, members.BulkInsert(ctx, rows), "重复批量插入失败")
	err := members.Insert(ctx, rows[1])
	assert.True(t, errorx.IsDuplicate(err), "%v", err)

	stored, err := members.ListMembers(ctx, direct.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	found, err := convs.FindDirect(ctx, key)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, direct.ID, found[0].ID)
	assert.Equal(t, []string{a, b}, found[0].MemberIDs())
	owner, ok := found[0].Member(a)
	require.True(t, ok)
	assert.Equal(t, model.RoleOwner, owner.Role)

	_, err = convs.FindByID(ctx, n("missing"))
	assert.True(t, errorx.IsNotFound(err), "%v", err)

	require.NoError(t, convs.SetHidden(ctx, direct.ID, a, true))
	got, err := convs.FindByID(ctx, direct.ID)
	require.NoError(t, err)
	m, _ := got.Member(a)
	assert.True(t, m.IsHidden)
	m, _ = got.Member(b)
	assert.False(t, m.IsHidden)

	group := &model.Conversation{Type: model.ConversationGroup, Name: "g", IsPrivate: true, CreatedBy: a}
	require.NoError(t, convs.Create(ctx, group))
	require.NoError(t, members.BulkInsert(ctx, model.NewMembers(group.ID, []string{a, c}, joined)))

	listA, err := convs.ListForUser(ctx, a, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{direct.ID, group.ID}, conversationIDs(listA))
	listB, err := convs.ListForUser(ctx, b, "")
	require.NoError(t, err)
	assert.Equal(t, []string{direct.ID}, conversationIDs(listB))

	require.NoError(t, convs.MarkMemberDeleted(ctx, direct.ID, b))
	got, err = convs.FindByID(ctx, direct.ID)
	require.NoError(t, err)
	m, _ = got.Member(b)
	require.NotNil(t, m.DeletedAt)
	first := *m.DeletedAt

	require.NoError(t, convs.MarkMemberDeleted(ctx, direct.ID, b))
	got, _ = convs.FindByID(ctx, direct.ID)
	m, _ = got.Member(b)
	assert.True(t, first.Equal(*m.DeletedAt), "重复删除保持原删除时间")
	assert.True(t, got.HasDeletedMember())

	// 成员删除不影响 FindDirect，复用判断由业务层负责
	found, err = convs.FindDirect(ctx, key)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func conversationIDs(convs []model.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}
