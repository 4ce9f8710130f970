//go:build integration

package mongodb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"regionchat_server/internal/config"
	"regionchat_server/internal/model"
	"regionchat_server/internal/testutil/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var mongoCfg config.MongoConfig

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		panic(err)
	}
	mongoCfg = config.MongoConfig{
		URI:          fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		DatabaseName: "regionchat_test",
		Timeout:      10 * time.Second,
	}

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func connect(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Connect(ctx, &mongoCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })
	return s
}

// seedUsers 按文档库客户端的字段格式写入用户
func seedUsers(t *testing.T, s *Store, users ...model.UserProfile) {
	t.Helper()
	docs := make([]any, 0, len(users))
	for _, u := range users {
		allow := u.Privacy != model.PrivacyContactsOnly
		docs = append(docs, userDoc{
			ID:        u.ID,
			Name:      u.Username,
			Region:    string(u.Region),
			Privacy:   privacyDoc{AllowStrangers: &allow},
			CreatedAt: time.Now().UTC(),
		})
	}
	_, err := s.Users.col.InsertMany(context.Background(), docs)
	require.NoError(t, err)
}

func TestStoreContract(t *testing.T) {
	s := connect(t)
	storetest.Run(t, storetest.Harness{
		Backend: s.Backend(),
		Seed: func(t *testing.T, users ...model.UserProfile) {
			seedUsers(t, s, users...)
		},
	})
}

func TestEnsureIndexesIsIdempotent(t *testing.T) {
	s := connect(t)
	require.NoError(t, s.EnsureIndexes(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestUserDocumentMapping(t *testing.T) {
	ctx := context.Background()
	s := connect(t)
	id := uuid.NewString()
	_, err := s.Users.col.InsertOne(ctx, userDoc{
		ID:          id,
		Email:       "x@example.com",
		Name:        "xiao",
		DisplayName: "Xiao Ming",
		Region:      "CN",
	})
	require.NoError(t, err)

	got, err := s.Users.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RegionCN, got.Region, "分区值大小写不敏感")
	assert.Equal(t, "xiao", got.Username)
	assert.Equal(t, "Xiao Ming", got.FullName)
	assert.Equal(t, "offline", got.Status)
	assert.True(t, got.AllowsNonContacts(), "缺少隐私设置时允许陌生人")

	noRegion := uuid.NewString()
	_, err = s.Users.col.InsertOne(ctx, userDoc{ID: noRegion})
	require.NoError(t, err)
	got, err = s.Users.FindByID(ctx, noRegion)
	require.NoError(t, err)
	assert.Empty(t, got.Region)
}

func TestRequestCreateRaceHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := connect(t)
	a, b := uuid.NewString(), uuid.NewString()

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			err := s.Requests.Create(ctx, &model.ContactRequest{RequesterID: from, RecipientID: to, Status: model.RequestPending, Region: model.RegionCN})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "稀疏唯一索引保证同一对用户只有一条有效申请")

	active, err := s.Requests.FindActiveBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestBulkInsertKeepsNonConflictingRows(t *testing.T) {
	ctx := context.Background()
	s := connect(t)
	convID := uuid.NewString()
	joined := time.Now().UTC().Truncate(time.Millisecond)
	rows := model.NewMembers(convID, []string{"m1", "m2", "m3"}, joined)

	require.NoError(t, s.Members.Insert(ctx, rows[1]))
	err := s.Members.BulkInsert(ctx, rows)
	require.Error(t, err)

	// 无序插入：冲突行之外的成员仍然写入
	stored, err := s.Members.ListMembers(ctx, convID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}
