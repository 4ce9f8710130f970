package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"regionchat_server/internal/config"
	"regionchat_server/internal/infrastructure/middleware"
	"regionchat_server/internal/model"
	"regionchat_server/internal/testutil/memstore"
	"regionchat_server/pkg/constants"
	"regionchat_server/pkg/errorx"
	"regionchat_server/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gatewaySecret = "gw-secret"

func newEngine(t *testing.T, gateway config.GatewayConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwt.Init("test-secret", "", 5)

	regions := memstore.NewRegions(1)
	regions.AddUser(model.UserProfile{ID: "alice", Region: model.RegionCN})
	regions.AddUser(model.UserProfile{ID: "bob", Region: model.RegionGlobal})

	r := gin.New()
	r.Use(middleware.Auth(gateway), middleware.RegionScope(regions.Router))
	r.GET("/whoami", func(c *gin.Context) {
		scope, ok := middleware.Scope(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user": scope.UserID(), "region": scope.Region, "kind": scope.Backend.Kind})
	})
	return r
}

func do(r *gin.Engine, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, userID, region string) http.Header {
	t.Helper()
	token, err := jwt.GenerateAccessToken(userID, region)
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestBearerTokenRoutesToRegion(t *testing.T) {
	r := newEngine(t, config.GatewayConfig{})

	w := do(r, bearer(t, "bob", "global"))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "bob", body["user"])
	assert.Equal(t, "global", body["region"])
	assert.Equal(t, "relational", body["kind"])
}

func TestUnauthenticated(t *testing.T) {
	r := newEngine(t, config.GatewayConfig{TrustedHeader: true, Secret: gatewaySecret})

	tests := []struct {
		name   string
		header http.Header
	}{
		{"no credentials", http.Header{}},
		{"malformed authorization", http.Header{"Authorization": {"Token abc"}}},
		{"invalid token", http.Header{"Authorization": {"Bearer not-a-jwt"}}},
		{"region claim mismatch", bearer(t, "alice", "global")},
		{"gateway header without secret", http.Header{
			constants.HEADER_USER_ID:     {"alice"},
			constants.HEADER_USER_REGION: {"cn"},
		}},
		{"gateway header with wrong secret", http.Header{
			constants.HEADER_USER_ID:        {"alice"},
			constants.HEADER_USER_REGION:    {"cn"},
			constants.HEADER_GATEWAY_SECRET: {"guess"},
		}},
		{"gateway identity for relational region", http.Header{
			constants.HEADER_USER_ID:        {"bob"},
			constants.HEADER_USER_REGION:    {"global"},
			constants.HEADER_GATEWAY_SECRET: {gatewaySecret},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body errorx.Body
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "UNAUTHORIZED", body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestGatewayHeaderForDocumentRegion(t *testing.T) {
	r := newEngine(t, config.GatewayConfig{TrustedHeader: true, Secret: gatewaySecret})

	w := do(r, http.Header{
		constants.HEADER_USER_ID:        {"alice"},
		constants.HEADER_USER_REGION:    {"cn"},
		constants.HEADER_GATEWAY_SECRET: {gatewaySecret},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"document"`)
}

func TestGatewayCookieFallback(t *testing.T) {
	r := newEngine(t, config.GatewayConfig{TrustedHeader: true, Secret: gatewaySecret})

	w := do(r, http.Header{
		"Cookie":                        {constants.COOKIE_USER_ID + "=alice"},
		constants.HEADER_USER_REGION:    {"cn"},
		constants.HEADER_GATEWAY_SECRET: {gatewaySecret},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGatewayDisabled(t *testing.T) {
	r := newEngine(t, config.GatewayConfig{TrustedHeader: false, Secret: gatewaySecret})

	w := do(r, http.Header{
		constants.HEADER_USER_ID:        {"alice"},
		constants.HEADER_USER_REGION:    {"cn"},
		constants.HEADER_GATEWAY_SECRET: {gatewaySecret},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestTimeoutSetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestTimeout(time.Second))
	r.GET("/", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": ok})
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())
}
