package member

import (
	"context"
	"testing"

	"regionchat_server/internal/model"
	"regionchat_server/pkg/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMemberStore struct {
	mock.Mock
}

func (m *mockMemberStore) BulkInsert(ctx context.Context, members []model.ConversationMember) error {
	args := m.Called(ctx, members)
	return args.Error(0)
}

func (m *mockMemberStore) Insert(ctx context.Context, member model.ConversationMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *mockMemberStore) ListMembers(ctx context.Context, conversationID string) ([]model.ConversationMember, error) {
	args := m.Called(ctx, conversationID)
	if v := args.Get(0); v != nil {
		return v.([]model.ConversationMember), args.Error(1)
	}
	return nil, args.Error(1)
}

func stored(conversationID string, ids ...string) []model.ConversationMember {
	out := make([]model.ConversationMember, 0, len(ids))
	for i, id := range ids {
		role := model.RoleMember
		if i == 0 {
			role = model.RoleOwner
		}
		out = append(out, model.ConversationMember{ConversationID: conversationID, UserID: id, Role: role})
	}
	return out
}

func byUser(id string) any {
	return mock.MatchedBy(func(m model.ConversationMember) bool { return m.UserID == id })
}

func TestAddMembersBulk(t *testing.T) {
	ms := new(mockMemberStore)
	ms.On("BulkInsert", mock.Anything, mock.MatchedBy(func(rows []model.ConversationMember) bool {
		return len(rows) == 2 && rows[0].Role == model.RoleOwner && rows[1].Role == model.RoleMember
	})).Return(nil).Once()
	ms.On("ListMembers", mock.Anything, "S1").Return(stored("S1", "a", "b"), nil).Once()

	got, err := NewProvisioner(2).AddMembers(context.Background(), ms, "S1", []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].UserID)
	ms.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	ms.AssertExpectations(t)
}

func TestAddMembersFallsBackToSingleInsert(t *testing.T) {
	ms := new(mockMemberStore)
	ms.On("BulkInsert", mock.Anything, mock.Anything).Return(errorx.New(errorx.CodeDBError, "bulk rejected")).Once()
	// 批量插入已经写入了 a，逐个插入时 a 报重复
	ms.On("Insert", mock.Anything, byUser("a")).Return(errorx.New(errorx.CodeDuplicate, "dup")).Once()
	ms.On("Insert", mock.Anything, byUser("b")).Return(nil).Once()
	ms.On("Insert", mock.Anything, byUser("c")).Return(nil).Once()
	ms.On("ListMembers", mock.Anything, "S1").Return(stored("S1", "a", "b", "c"), nil).Once()

	got, err := NewProvisioner(2).AddMembers(context.Background(), ms, "S1", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	ms.AssertExpectations(t)
}

func TestAddMembersSurfacesSilentPartialInsert(t *testing.T) {
	ms := new(mockMemberStore)
	ms.On("BulkInsert", mock.Anything, mock.Anything).Return(errorx.New(errorx.CodeDBError, "bulk rejected")).Once()
	ms.On("Insert", mock.Anything, mock.Anything).Return(nil).Times(2)
	// 写入“成功”但确认读只看到 owner
	ms.On("ListMembers", mock.Anything, "S1").Return(stored("S1", "a"), nil).Once()

	_, err := NewProvisioner(2).AddMembers(context.Background(), ms, "S1", []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeDBError, errorx.GetCode(err))
	ms.AssertExpectations(t)
}

func TestAddMembersRetriesVerifyRead(t *testing.T) {
	ms := new(mockMemberStore)
	ms.On("BulkInsert", mock.Anything, mock.Anything).Return(nil).Once()
	ms.On("ListMembers", mock.Anything, "S1").Return(nil, errorx.New(errorx.CodeDBError, "timeout")).Once()
	ms.On("ListMembers", mock.Anything, "S1").Return(stored("S1", "a"), nil).Once()

	got, err := NewProvisioner(3).AddMembers(context.Background(), ms, "S1", []string{"a"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	ms.AssertExpectations(t)
}

func TestAddMembersRejectsEmpty(t *testing.T) {
	ms := new(mockMemberStore)
	_, err := NewProvisioner(1).AddMembers(context.Background(), ms, "S1", nil)
	assert.ErrorIs(t, err, errorx.ErrInvalidParam)
	ms.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
}
