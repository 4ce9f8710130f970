package conversation

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"regionchat_server/internal/dto/request"
	"regionchat_server/internal/model"
	"regionchat_server/internal/region"
	"regionchat_server/internal/service/contact"
	"regionchat_server/internal/service/member"
	"regionchat_server/internal/testutil/memstore"
	"regionchat_server/pkg/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	regions *memstore.Regions
	events  *memstore.Events
	svc     *conversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	regions := memstore.NewRegions(3)
	for _, u := range []model.UserProfile{
		{ID: "alice", Region: model.RegionCN},
		{ID: "bob", Region: model.RegionCN},
		{ID: "carol", Region: model.RegionCN, Privacy: model.PrivacyContactsOnly},
		{ID: "dan", Region: model.RegionCN},
		{ID: "dave", Region: model.RegionGlobal},
	} {
		regions.AddUser(u)
	}
	events := &memstore.Events{}
	return &fixture{
		regions: regions,
		events:  events,
		svc:     NewConversationService(regions.Router, member.NewProvisioner(3), nil, events, 3),
	}
}

func (f *fixture) scope(t *testing.T, userID string) *region.Resolution {
	t.Helper()
	reg := model.RegionCN
	if userID == "dave" {
		reg = model.RegionGlobal
	}
	scope, err := f.regions.Scope(context.Background(), userID, reg)
	require.NoError(t, err)
	return scope
}

func (f *fixture) connect(t *testing.T, a, b string) {
	t.Helper()
	require.NoError(t, f.regions.CN.Backend().Contacts.CreatePair(context.Background(), a, b))
}

func (f *fixture) direct(t *testing.T, from, to string) (*model.Conversation, error) {
	t.Helper()
	return f.svc.Create(context.Background(), f.scope(t, from), request.CreateConversationRequest{
		Type:      string(model.ConversationDirect),
		MemberIDs: []string{to},
	})
}

func (f *fixture) list(t *testing.T, userID string) []model.Conversation {
	t.Helper()
	convs, err := f.svc.List(context.Background(), f.scope(t, userID), "")
	require.NoError(t, err)
	return convs
}

func directIDs(convs []model.Conversation, key string) []string {
	var out []string
	for _, c := range convs {
		if c.Type == model.ConversationDirect && c.MemberKey == key {
			out = append(out, c.ID)
		}
	}
	return out
}

func assertRule(t *testing.T, err error, want *errorx.CodeError, status int) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, want)
	gotStatus, body := errorx.ToResponse(err)
	assert.Equal(t, status, gotStatus)
	assert.Equal(t, want.Rule, body.Code)
}

func TestCreateDirectReturnsFullEntity(t *testing.T) {
	f := newFixture(t)

	conv, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, model.ConversationDirect, conv.Type)
	assert.Equal(t, "alice:bob", conv.MemberKey)
	assert.Equal(t, []string{"alice", "bob"}, conv.MemberIDs())
	owner, ok := conv.Member("alice")
	require.True(t, ok)
	assert.Equal(t, model.RoleOwner, owner.Role)
	assert.Contains(t, f.events.Types(), model.EventConversationCreated)

	again, err := f.direct(t, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.Len(t, f.regions.CN.Conversations(), 1)
}

func TestCreateDirectAcceptsCallerInMemberIDs(t *testing.T) {
	f := newFixture(t)
	conv, err := f.svc.Create(context.Background(), f.scope(t, "alice"), request.CreateConversationRequest{
		Type:      "direct",
		MemberIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice:bob", conv.MemberKey)

	_, err = f.svc.Create(context.Background(), f.scope(t, "alice"), request.CreateConversationRequest{
		Type:      "direct",
		MemberIDs: []string{"bob", "dan"},
	})
	assert.ErrorIs(t, err, errorx.ErrInvalidParam)
}

func TestSelfChatIsolation(t *testing.T) {
	f := newFixture(t)

	self, err := f.direct(t, "alice", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, self.MemberIDs())
	assert.True(t, self.IsSelfChat())

	pair, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, self.ID, pair.ID)

	again, err := f.svc.FindOrCreateDirect(context.Background(), f.scope(t, "alice"), "alice")
	require.NoError(t, err)
	assert.Equal(t, self.ID, again.ID)

	bobSelf, err := f.direct(t, "bob", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, self.ID, bobSelf.ID)
	assert.Equal(t, []string{"bob"}, bobSelf.MemberIDs())

	// 自聊不要求联系人关系
	assert.Equal(t, []string{self.ID}, directIDs(f.list(t, "alice"), "alice"))
}

func TestIdempotentSingletonUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alice", "bob")

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			caller, peer := "alice", "bob"
			if i%2 == 1 {
				caller, peer = peer, caller
			}
			scope, err := f.regions.Scope(context.Background(), caller, model.RegionCN)
			if err != nil {
				errs[i] = err
				return
			}
			conv, err := f.svc.FindOrCreateDirect(context.Background(), scope, peer)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = conv.ID
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	listed := directIDs(f.list(t, "alice"), "alice:bob")
	require.Len(t, listed, 1, "去重后只有一个规范会话")
	assert.Equal(t, listed, directIDs(f.list(t, "bob"), "alice:bob"))

	stored := make(map[string]bool)
	for _, c := range f.regions.CN.Conversations() {
		stored[c.ID] = true
	}
	for _, id := range results {
		assert.True(t, stored[id])
	}

	next, err := f.svc.FindOrCreateDirect(context.Background(), f.scope(t, "bob"), "alice")
	require.NoError(t, err)
	assert.Equal(t, listed[0], next.ID)
}

func TestDedupDeterminism(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alice", "bob")
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	members := func() []model.ConversationMember {
		return []model.ConversationMember{{UserID: "alice", Role: model.RoleOwner}, {UserID: "bob"}}
	}
	older := f.regions.CN.PutConversation(model.Conversation{
		ID: "S-older", Type: model.ConversationDirect, MemberKey: "alice:bob", CreatedAt: base, Members: members(),
	})
	f.regions.CN.PutConversation(model.Conversation{
		ID: "S-newer", Type: model.ConversationDirect, MemberKey: "alice:bob", CreatedAt: base.Add(time.Hour), Members: members(),
	})

	for i := 0; i < 5; i++ {
		assert.Equal(t, []string{older.ID}, directIDs(f.list(t, "alice"), "alice:bob"))
		assert.Equal(t, []string{older.ID}, directIDs(f.list(t, "bob"), "alice:bob"))
		conv, err := f.svc.FindOrCreateDirect(context.Background(), f.scope(t, "alice"), "bob")
		require.NoError(t, err)
		assert.Equal(t, older.ID, conv.ID)
	}
	assert.Contains(t, f.events.Types(), model.EventRepairDuplicateConvo)

	// 有消息的会话优先于无消息的会话
	last := base.Add(2 * time.Hour)
	active := f.regions.CN.PutConversation(model.Conversation{
		ID: "S-active", Type: model.ConversationDirect, MemberKey: "alice:bob", CreatedAt: base.Add(90 * time.Minute), LastMessageAt: &last, Members: members(),
	})
	for i := 0; i < 3; i++ {
		assert.Equal(t, []string{active.ID}, directIDs(f.list(t, "alice"), "alice:bob"))
	}
}

func TestUnfriendThenRemessage(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alice", "bob")
	old, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)

	contacts := contact.NewContactService(f.regions.Router, nil, f.events, 3)
	require.NoError(t, contacts.DeleteContact(context.Background(), f.scope(t, "alice"), "bob"))

	_, err = f.svc.Get(context.Background(), f.scope(t, "alice"), old.ID, "")
	assert.ErrorIs(t, err, errorx.ErrNotFound, "旧会话对双方都不可见")
	_, err = f.svc.Get(context.Background(), f.scope(t, "bob"), old.ID, "")
	assert.ErrorIs(t, err, errorx.ErrNotFound)

	fresh, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	for _, m := range fresh.Members {
		assert.Nil(t, m.DeletedAt)
	}
}

func TestPeerDeletedConversationIsNotReused(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alice", "bob")
	old, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)

	deleted, err := f.svc.Delete(context.Background(), f.scope(t, "bob"), old.ID)
	require.NoError(t, err)
	m, ok := deleted.Member("bob")
	require.True(t, ok)
	assert.NotNil(t, m.DeletedAt)

	// alice 一侧的旧会话不再出现在列表里，避免和新会话来回切换
	assert.Empty(t, directIDs(f.list(t, "alice"), "alice:bob"))

	fresh, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, []string{fresh.ID}, directIDs(f.list(t, "alice"), "alice:bob"))
}

func TestHideAndReopen(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alice", "bob")
	conv, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)

	hidden, err := f.svc.Hide(context.Background(), f.scope(t, "alice"), conv.ID)
	require.NoError(t, err)
	m, _ := hidden.Member("alice")
	assert.True(t, m.IsHidden)
	assert.Empty(t, directIDs(f.list(t, "alice"), "alice:bob"))
	assert.Len(t, directIDs(f.list(t, "bob"), "alice:bob"), 1, "隐藏只影响自己")

	reopened, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, reopened.ID)
	m, _ = reopened.Member("alice")
	assert.False(t, m.IsHidden)
	assert.Equal(t, []string{conv.ID}, directIDs(f.list(t, "alice"), "alice:bob"))
}

func TestPermissionChain(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture)
		peer   string
		req    func(r *request.CreateConversationRequest)
		want   *errorx.CodeError
		status int
	}{
		{
			name: "blocked by peer",
			setup: func(t *testing.T, f *fixture) {
				require.NoError(t, f.regions.CN.Backend().Contacts.SetBlocked(context.Background(), "bob", "alice", true))
			},
			peer:   "bob",
			want:   errorx.ErrBlocked,
			status: http.StatusForbidden,
		},
		{
			name: "blocked wins over privacy",
			setup: func(t *testing.T, f *fixture) {
				require.NoError(t, f.regions.CN.Backend().Contacts.SetBlocked(context.Background(), "alice", "carol", true))
			},
			peer:   "carol",
			want:   errorx.ErrBlocked,
			status: http.StatusForbidden,
		},
		{
			name:   "privacy restricted",
			peer:   "carol",
			want:   errorx.ErrPrivacy,
			status: http.StatusForbidden,
		},
		{
			name: "workspace mismatch",
			setup: func(t *testing.T, f *fixture) {
				f.regions.CN.AddWorkspaceMember("W1", "alice")
			},
			peer:   "bob",
			req:    func(r *request.CreateConversationRequest) { r.WorkspaceID = "W1" },
			want:   errorx.ErrWorkspace,
			status: http.StatusForbidden,
		},
		{
			name:   "region mismatch",
			peer:   "dave",
			want:   errorx.ErrRegionMismatch,
			status: http.StatusForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			before := f.regions.CN.RowCount() + f.regions.Global.RowCount()
			req := request.CreateConversationRequest{Type: "direct", MemberIDs: []string{tt.peer}}
			if tt.req != nil {
				tt.req(&req)
			}
			_, err := f.svc.Create(context.Background(), f.scope(t, "alice"), req)
			assertRule(t, err, tt.want, tt.status)
			assert.Empty(t, f.regions.CN.Conversations())
			assert.Equal(t, before, f.regions.CN.RowCount()+f.regions.Global.RowCount(), "被拒绝时不产生任何写入")
		})
	}
}

func TestPermissionChainUnknownPeer(t *testing.T) {
	f := newFixture(t)
	_, err := f.direct(t, "alice", "ghost")
	assert.ErrorIs(t, err, errorx.ErrUserNotExist)
	status, _ := errorx.ToResponse(err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSkipContactCheck(t *testing.T) {
	f := newFixture(t)
	conv, err := f.svc.Create(context.Background(), f.scope(t, "alice"), request.CreateConversationRequest{
		Type:             "direct",
		MemberIDs:        []string{"carol"},
		SkipContactCheck: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice:carol", conv.MemberKey)

	// 跳过联系人检查不跳过拉黑
	require.NoError(t, f.regions.CN.Backend().Contacts.SetBlocked(context.Background(), "carol", "alice", true))
	_, err = f.svc.Create(context.Background(), f.scope(t, "alice"), request.CreateConversationRequest{
		Type:             "direct",
		MemberIDs:        []string{"carol"},
		SkipContactCheck: true,
	})
	assert.ErrorIs(t, err, errorx.ErrBlocked)
}

func TestContactsOnlyPeerAllowsContacts(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alice", "carol")
	_, err := f.direct(t, "alice", "carol")
	assert.NoError(t, err)
}

func TestListFiltersNonContactDirects(t *testing.T) {
	f := newFixture(t)
	// bob 不是 alice 的联系人，会话能创建但不出现在列表里
	conv, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, directIDs(f.list(t, "alice"), "alice:bob"))

	f.connect(t, "alice", "bob")
	assert.Equal(t, []string{conv.ID}, directIDs(f.list(t, "alice"), "alice:bob"))
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group, err := f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{
		Type:      "group",
		Name:      "  team  ",
		MemberIDs: []string{"bob", "alice", "dan", "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, "team", group.Name)
	assert.True(t, group.IsPrivate, "群聊默认私有")
	require.Len(t, group.Members, 3)
	owner, _ := group.Member("alice")
	assert.Equal(t, model.RoleOwner, owner.Role)

	notPrivate := false
	channel, err := f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{
		Type:      "channel",
		Name:      "news",
		MemberIDs: []string{"bob"},
	})
	require.NoError(t, err)
	assert.False(t, channel.IsPrivate, "频道默认公开")

	open, err := f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{
		Type:      "group",
		Name:      "open",
		MemberIDs: []string{"bob"},
		IsPrivate: &notPrivate,
	})
	require.NoError(t, err)
	assert.False(t, open.IsPrivate)

	ids := make([]string, 0)
	for _, c := range f.list(t, "bob") {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{group.ID, channel.ID, open.ID}, ids)
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{Type: "group", Name: " ", MemberIDs: []string{"bob"}})
	assert.ErrorIs(t, err, errorx.ErrInvalidParam)

	_, err = f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{Type: "group", Name: "x", MemberIDs: []string{"bob", "dave"}})
	assert.ErrorIs(t, err, errorx.ErrRegionMismatch)

	_, err = f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{Type: "group", Name: "x", MemberIDs: []string{"ghost"}})
	assert.ErrorIs(t, err, errorx.ErrUserNotExist)

	f.regions.CN.AddWorkspaceMember("W1", "alice")
	f.regions.CN.AddWorkspaceMember("W1", "bob")
	_, err = f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{Type: "group", Name: "x", MemberIDs: []string{"bob", "dan"}, WorkspaceID: "W1"})
	assert.ErrorIs(t, err, errorx.ErrWorkspace)

	assert.Empty(t, f.regions.CN.Conversations())

	_, err = f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{Type: "dm", MemberIDs: []string{"bob"}})
	assert.ErrorIs(t, err, errorx.ErrInvalidParam)
}

func TestWorkspaceScopedListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, "alice", "bob")

	w1, err := f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{Type: "group", Name: "w1", MemberIDs: []string{"bob"}, WorkspaceID: "W1"})
	require.NoError(t, err)
	w2, err := f.svc.Create(ctx, f.scope(t, "alice"), request.CreateConversationRequest{Type: "group", Name: "w2", MemberIDs: []string{"bob"}, WorkspaceID: "W2"})
	require.NoError(t, err)
	dm, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)

	convs, err := f.svc.List(ctx, f.scope(t, "alice"), "W1")
	require.NoError(t, err)
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{w1.ID, dm.ID}, ids, "私聊不属于任何工作区")

	_, err = f.svc.Get(ctx, f.scope(t, "alice"), w2.ID, "W1")
	assert.ErrorIs(t, err, errorx.ErrNotFound)
	got, err := f.svc.Get(ctx, f.scope(t, "alice"), w2.ID, "W2")
	require.NoError(t, err)
	assert.Equal(t, w2.ID, got.ID)

	_, err = f.svc.Get(ctx, f.scope(t, "dan"), w1.ID, "")
	assert.ErrorIs(t, err, errorx.ErrNotFound, "非成员看不到会话")
	_, err = f.svc.Get(ctx, f.scope(t, "alice"), "missing", "")
	assert.ErrorIs(t, err, errorx.ErrNotFound)
}

func TestMembershipFallbackAndVerification(t *testing.T) {
	f := newFixture(t)
	f.regions.CN.FailBulkInsert = true

	conv, err := f.direct(t, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, conv.MemberIDs())

	f.regions.CN.DropMembers = map[string]bool{"dan": true}
	_, err = f.svc.Create(context.Background(), f.scope(t, "alice"), request.CreateConversationRequest{
		Type:      "group",
		Name:      "partial",
		MemberIDs: []string{"bob", "dan"},
	})
	require.Error(t, err)
	status, body := errorx.ToResponse(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", body.Code)
}

func TestTransientReadIsRetried(t *testing.T) {
	f := newFixture(t)
	scope := f.scope(t, "alice")
	f.regions.CN.ReadFailures = 2

	conv, err := f.svc.FindOrCreateDirect(context.Background(), scope, "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice:bob", conv.MemberKey)
}
