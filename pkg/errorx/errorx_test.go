package errorx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantType   string
		wantMsg    string
	}{
		{
			name:       "rule error keeps rule name",
			err:        ErrBlocked,
			wantStatus: http.StatusForbidden,
			wantCode:   RuleBlocked,
			wantMsg:    ErrBlocked.Msg,
		},
		{
			name:       "pending conflict carries errorType",
			err:        ErrRequestReceived.WithStatus(http.StatusBadRequest),
			wantStatus: http.StatusBadRequest,
			wantCode:   RuleRequestReceived,
			wantType:   TypeReceivedPending,
			wantMsg:    ErrRequestReceived.Msg,
		},
		{
			name:       "code without rule uses code name",
			err:        ErrUserNotExist,
			wantStatus: http.StatusNotFound,
			wantCode:   "USER_NOT_FOUND",
			wantMsg:    ErrUserNotExist.Msg,
		},
		{
			name:       "wrapped backend error is hidden",
			err:        Wrap(errors.New("dial tcp 10.0.0.1:3306: i/o timeout"), CodeDBError, "查询失败"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
			wantMsg:    ErrServerBusy.Msg,
		},
		{
			name:       "plain error is internal",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
			wantMsg:    ErrServerBusy.Msg,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ToResponse(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantType, body.ErrorType)
			assert.Equal(t, tt.wantMsg, body.Error)
		})
	}
}

func TestCodeErrorIs(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", ErrRequestSent.WithStatus(http.StatusBadRequest))
	assert.True(t, errors.Is(wrapped, ErrRequestSent))
	assert.False(t, errors.Is(wrapped, ErrRequestReceived))
	assert.False(t, errors.Is(ErrBlocked, ErrPrivacy))
}

func TestWithStatusDoesNotMutate(t *testing.T) {
	cp := ErrContactExists.WithStatus(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, cp.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, ErrContactExists.HTTPStatus())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(New(CodeDBError, "db")))
	assert.True(t, IsTransient(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(ErrNotFound))
	assert.False(t, IsTransient(nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrUserNotExist))
	assert.True(t, IsNotFound(Wrap(errors.New("record not found"), CodeNotFound, "x")))
	assert.False(t, IsNotFound(ErrBlocked))
}
