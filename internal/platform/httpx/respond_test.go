package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.NewError(shared.ErrValidation, "Role name is required"), http.StatusBadRequest},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrAccountInactive, http.StatusForbidden},
		{shared.NewError(shared.ErrNotFound, "Role not found"), http.StatusNotFound},
		{shared.NewError(shared.ErrConflict, "Role name already exists"), http.StatusConflict},
		{shared.ErrRoleInUse, http.StatusBadRequest},
		{fmt.Errorf("delete role: %w", shared.ErrRoleInUse), http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: relation users does not exist"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, InternalErrorMessage, body.Error)
}

func TestRespondErrorUsesDomainMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.NewError(shared.ErrNotFound, "Role not found"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Role not found"}`, rec.Body.String())
}

func TestOKEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, http.StatusCreated, map[string]string{"id": "r1"}, "Role created successfully")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"id":"r1"},"message":"Role created successfully"}`, rec.Body.String())
}

func TestDecodeAndValidate(t *testing.T) {
	type input struct {
		Email string `json:"email" validate:"required,email"`
		Name  string `json:"name" validate:"omitempty,max=5"`
	}
	v := NewValidator()

	cases := []struct {
		body string
		want string
	}{
		{`{`, "Invalid request body"},
		{`{}`, "email is required"},
		{`{"email":"nope"}`, "Invalid email format"},
		{`{"email":"a@b.com","name":"toolong"}`, "name must be at most 5 characters"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		var in input
		err := DecodeAndValidate(req, v, &in)
		require.Error(t, err, tc.body)
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.Equal(t, tc.want, err.Error())
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com"}`))
	var in input
	require.NoError(t, DecodeAndValidate(req, v, &in))
	assert.Equal(t, "a@b.com", in.Email)
}
