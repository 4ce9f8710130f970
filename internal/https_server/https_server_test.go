package https_server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"regionchat_server/internal/config"
	"regionchat_server/internal/handler"
	"regionchat_server/internal/https_server"
	"regionchat_server/internal/model"
	"regionchat_server/internal/service"
	"regionchat_server/internal/testutil/memstore"
	"regionchat_server/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	jwt.Init("test-secret", "", 5)
	if err := handler.InitTrans("zh"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type server struct {
	engine  *gin.Engine
	regions *memstore.Regions
	events  *memstore.Events
}

func newServer(t *testing.T, checks map[string]handler.HealthCheck) *server {
	t.Helper()
	regions := memstore.NewRegions(3)
	for _, u := range []model.UserProfile{
		{ID: "alice", Region: model.RegionCN, Username: "alice"},
		{ID: "bob", Region: model.RegionCN, Username: "bob"},
		{ID: "carol", Region: model.RegionCN, Privacy: model.PrivacyContactsOnly},
		{ID: "dave", Region: model.RegionGlobal},
	} {
		regions.AddUser(u)
	}
	events := &memstore.Events{}
	svc := service.NewServices(service.Deps{Router: regions.Router, Publisher: events, Attempts: 3})

	cfg := &config.Config{}
	cfg.RequestTimeout = 5 * time.Second
	engine := https_server.Init(cfg, handler.NewHandlers(svc, checks), regions.Router)
	return &server{engine: engine, regions: regions, events: events}
}

type response struct {
	Status int
	Body   map[string]any
}

func (s *server) do(t *testing.T, userID, method, path string, body any) response {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		reg := model.RegionCN
		if userID == "dave" {
			reg = model.RegionGlobal
		}
		token, err := jwt.GenerateAccessToken(userID, string(reg))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	out := response{Status: w.Code}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out.Body), w.Body.String())
	}
	return out
}

func field(t *testing.T, body map[string]any, path ...string) any {
	t.Helper()
	var cur any = body
	for _, p := range path {
		m, ok := cur.(map[string]any)
		require.True(t, ok, "路径 %v 不是对象", path)
		cur = m[p]
	}
	return cur
}

func TestHealthz(t *testing.T) {
	s := newServer(t, map[string]handler.HealthCheck{
		"cn": func(context.Context) error { return nil },
	})
	res := s.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "ok", res.Body["status"])

	s = newServer(t, map[string]handler.HealthCheck{
		"cn":     func(context.Context) error { return nil },
		"global": func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	res = s.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, "down", field(t, res.Body, "checks", "global"))
	assert.Equal(t, "ok", field(t, res.Body, "checks", "cn"))
}

func TestRequiresAuthentication(t *testing.T) {
	s := newServer(t, nil)
	for _, path := range []string{"/contact-requests", "/contacts", "/conversations"} {
		res := s.do(t, "", http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Status, path)
		assert.Equal(t, "UNAUTHORIZED", res.Body["code"], path)
	}
}

func TestValidationErrors(t *testing.T) {
	s := newServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"missing recipient", http.MethodPost, "/contact-requests", map[string]any{}},
		{"recipient with colon", http.MethodPost, "/contact-requests", map[string]any{"recipient_id": "a:b"}},
		{"malformed json", http.MethodPost, "/contact-requests", "{"},
		{"bad list type", http.MethodGet, "/contact-requests?type=inbox", nil},
		{"bad action", http.MethodPost, "/contact-requests/R1/respond", map[string]any{"action": "maybe"}},
		{"unknown conversation type", http.MethodPost, "/conversations", map[string]any{"type": "dm", "member_ids": []string{"bob"}}},
		{"empty member ids", http.MethodPost, "/conversations", map[string]any{"type": "direct", "member_ids": []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.do(t, "alice", tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, res.Status)
			assert.Equal(t, "INVALID_PARAM", res.Body["code"])
			assert.NotEmpty(t, res.Body["error"])
			assert.Len(t, res.Body, 2, "参数错误与其他错误同样只有 error/code")
		})
	}
	assert.Empty(t, s.regions.CN.Requests())
}

func TestContactRequestFlow(t *testing.T) {
	s := newServer(t, nil)

	res := s.do(t, "alice", http.MethodPost, "/contact-requests", map[string]any{"recipient_id": "BOB", "message": "hi"})
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	requestID, _ := field(t, res.Body, "request", "id").(string)
	require.NotEmpty(t, requestID)
	assert.Equal(t, "pending", field(t, res.Body, "request", "status"))
	assert.Equal(t, "bob", field(t, res.Body, "request", "recipient_id"))

	// 反方向的申请：400 并带上 errorType，客户端据此引导去处理已收到的申请
	res = s.do(t, "bob", http.MethodPost, "/contact-requests", map[string]any{"recipient_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "REQUEST_ALREADY_RECEIVED", res.Body["code"])
	assert.Equal(t, "received_pending", res.Body["errorType"])

	res = s.do(t, "bob", http.MethodGet, "/contact-requests?type=received", nil)
	require.Equal(t, http.StatusOK, res.Status)
	requests, _ := res.Body["requests"].([]any)
	require.Len(t, requests, 1)

	res = s.do(t, "alice", http.MethodPost, "/contact-requests/"+requestID+"/respond", map[string]any{"action": "accept"})
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "NOT_REQUEST_PARTY", res.Body["code"])

	res = s.do(t, "bob", http.MethodPost, "/contact-requests/"+requestID+"/respond", map[string]any{"action": "accept"})
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, "accepted", field(t, res.Body, "request", "status"))
	assert.Equal(t, "alice", field(t, res.Body, "contact", "contact_user_id"))

	res = s.do(t, "alice", http.MethodGet, "/contacts", nil)
	require.Equal(t, http.StatusOK, res.Status)
	contacts, _ := res.Body["contacts"].([]any)
	assert.Len(t, contacts, 1)

	res = s.do(t, "alice", http.MethodPost, "/contact-requests", map[string]any{"recipient_id": "bob"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "CONTACT_EXISTS", res.Body["code"])

	assert.Contains(t, s.events.Types(), model.EventRequestAccepted)
}

func TestContactRequestRuleErrorsAreBadRequest(t *testing.T) {
	s := newServer(t, nil)

	res := s.do(t, "alice", http.MethodPost, "/contact-requests", map[string]any{"recipient_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "SELF_REQUEST", res.Body["code"])

	res = s.do(t, "alice", http.MethodPost, "/contact-requests", map[string]any{"recipient_id": "dave"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "REGION_MISMATCH", res.Body["code"])

	res = s.do(t, "alice", http.MethodPost, "/contact-requests", map[string]any{"recipient_id": "carol"})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "PRIVACY_RESTRICTED", res.Body["code"])

	// 请求体无法关闭隐私检查
	res = s.do(t, "alice", http.MethodPost, "/contact-requests", map[string]any{"recipient_id": "carol", "skip_privacy_check": true})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "PRIVACY_RESTRICTED", res.Body["code"])

	res = s.do(t, "alice", http.MethodPost, "/contact-requests", map[string]any{"recipient_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "USER_NOT_FOUND", res.Body["code"])

	assert.Zero(t, s.regions.CN.RowCount())
	assert.Zero(t, s.regions.Global.RowCount())
}

func TestContactRoutes(t *testing.T) {
	s := newServer(t, nil)
	require.NoError(t, s.regions.CN.Backend().Contacts.CreatePair(context.Background(), "alice", "bob"))

	res := s.do(t, "alice", http.MethodPut, "/contacts/bob/favorite", map[string]any{"is_favorite": true})
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, true, field(t, res.Body, "contact", "is_favorite"))

	// 缺少 is_favorite 不会把星标清掉
	res = s.do(t, "alice", http.MethodPut, "/contacts/bob/favorite", map[string]any{"favorite": false})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "INVALID_PARAM", res.Body["code"])
	rows, err := s.regions.CN.Backend().Contacts.FindBetween(context.Background(), "alice", "bob")
	require.NoError(t, err)
	for _, row := range rows {
		if row.UserID == "alice" {
			assert.True(t, row.IsFavorite)
		}
	}

	res = s.do(t, "alice", http.MethodPut, "/contacts/bob/favorite", map[string]any{"is_favorite": false})
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, false, field(t, res.Body, "contact", "is_favorite"))

	res = s.do(t, "alice", http.MethodPost, "/contacts/bob/block", nil)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, true, field(t, res.Body, "contact", "is_blocked"))

	res = s.do(t, "alice", http.MethodDelete, "/contacts/bob/block", nil)
	require.Equal(t, http.StatusOK, res.Status, res.Body)

	res = s.do(t, "alice", http.MethodDelete, "/contacts/bob", nil)
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	assert.Equal(t, "bob", res.Body["contactId"])

	res = s.do(t, "alice", http.MethodDelete, "/contacts/bob", nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestConversationRoutes(t *testing.T) {
	s := newServer(t, nil)
	require.NoError(t, s.regions.CN.Backend().Contacts.CreatePair(context.Background(), "alice", "bob"))

	res := s.do(t, "alice", http.MethodPost, "/conversations", map[string]any{"type": "direct", "member_ids": []string{"bob"}})
	require.Equal(t, http.StatusOK, res.Status, res.Body)
	convID, _ := field(t, res.Body, "conversation", "id").(string)
	require.NotEmpty(t, convID)
	members, _ := field(t, res.Body, "conversation", "members").([]any)
	assert.Len(t, members, 2)

	res = s.do(t, "bob", http.MethodPost, "/conversations", map[string]any{"type": "direct", "member_ids": []string{"alice"}})
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, convID, field(t, res.Body, "conversation", "id"))

	res = s.do(t, "alice", http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, res.Status)
	convs, _ := res.Body["conversations"].([]any)
	assert.Len(t, convs, 1)

	res = s.do(t, "alice", http.MethodGet, "/conversations?conversationId="+convID, nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, convID, field(t, res.Body, "conversation", "id"))

	res = s.do(t, "alice", http.MethodPost, "/conversations/"+convID+"/hide", nil)
	require.Equal(t, http.StatusOK, res.Status)
	res = s.do(t, "alice", http.MethodGet, "/conversations", nil)
	convs, _ = res.Body["conversations"].([]any)
	assert.Empty(t, convs)

	res = s.do(t, "bob", http.MethodDelete, "/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, res.Status)
	res = s.do(t, "bob", http.MethodGet, "/conversations?conversationId="+convID, nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "NOT_FOUND", res.Body["code"])
}

func TestConversationRuleErrorsAreForbidden(t *testing.T) {
	s := newServer(t, nil)

	res := s.do(t, "alice", http.MethodPost, "/conversations", map[string]any{"type": "direct", "member_ids": []string{"carol"}})
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "PRIVACY_RESTRICTED", res.Body["code"])

	res = s.do(t, "alice", http.MethodPost, "/conversations", map[string]any{"type": "direct", "member_ids": []string{"dave"}})
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "REGION_MISMATCH", res.Body["code"])

	require.NoError(t, s.regions.CN.Backend().Contacts.SetBlocked(context.Background(), "bob", "alice", true))
	res = s.do(t, "alice", http.MethodPost, "/conversations", map[string]any{"type": "direct", "member_ids": []string{"bob"}})
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "BLOCKED", res.Body["code"])

	assert.Empty(t, s.regions.CN.Conversations())
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	s := newServer(t, nil)
	s.regions.CN.ReadFailures = 100

	res := s.do(t, "alice", http.MethodGet, "/conversations", nil)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "INTERNAL", res.Body["code"])
	assert.NotContains(t, res.Body["error"], "注入")
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/conversations", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Less(t, w.Code, http.StatusBadRequest)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
