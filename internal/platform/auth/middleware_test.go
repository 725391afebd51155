package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func serveAuth(authn *Authenticator, authorization string, roles ...string) (*httptest.ResponseRecorder, *Identity) {
	var identity *Identity
	handler := authn.RequireFirebaseAuth(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, identity
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	code, _ := body["error"].(string)
	return code
}

func TestRequireFirebaseAuthAttachesIdentity(t *testing.T) {
	verifier := &stubVerifier{token: &firebaseauth.Token{
		UID:    "staff-1",
		Claims: map[string]any{"role": []any{"Staff", "admin"}, "email": "ops@solestore.example"},
	}}

	rec, identity := serveAuth(NewAuthenticator(verifier), "Bearer abc.def", RoleStaff)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc.def", verifier.received)
	require.NotNil(t, identity)
	assert.Equal(t, "staff-1", identity.UID)
	assert.Equal(t, []string{"staff", "admin"}, identity.Roles)
	assert.True(t, identity.IsStaff())
}

func TestRequireFirebaseAuthDefaultsToShopper(t *testing.T) {
	verifier := &stubVerifier{token: &firebaseauth.Token{UID: "user-1", Claims: map[string]any{}}}

	rec, identity := serveAuth(NewAuthenticator(verifier), "Bearer token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{RoleUser}, identity.Roles)
	assert.False(t, identity.IsStaff())

	rec, identity = serveAuth(NewAuthenticator(verifier), "Bearer token", RoleStaff, RoleAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))
	assert.Nil(t, identity)
}

func TestRequireFirebaseAuthRejections(t *testing.T) {
	cases := []struct {
		name          string
		authn         *Authenticator
		authorization string
		code          string
	}{
		{name: "missing header", authn: NewAuthenticator(&stubVerifier{}), code: "unauthenticated"},
		{name: "wrong scheme", authn: NewAuthenticator(&stubVerifier{}), authorization: "Basic abc", code: "unauthenticated"},
		{name: "no verifier", authn: NewAuthenticator(nil), authorization: "Bearer abc", code: "unavailable"},
		{name: "invalid", authn: NewAuthenticator(&stubVerifier{err: errors.New("bad signature")}), authorization: "Bearer abc", code: "invalid_token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, identity := serveAuth(tc.authn, tc.authorization)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tc.code, errorCode(t, rec))
			assert.Nil(t, identity)
		})
	}
}
