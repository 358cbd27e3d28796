package hirelinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsJSONAndHeaders(t *testing.T) {
	var gotMethod, gotPath, gotCT, gotAuth, gotReqID, gotTenant string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-Id")
		gotTenant = r.Header.Get("X-Tenant")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"id":7}`)
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.Headers = http.Header{"X-Tenant": []string{"acme"}}
	c.SetBearerToken("tok")
	resp, err := c.Patch(context.Background(), "/api/candidates/7/status", map[string]string{"status": "Aprovado"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/api/candidates/7/status", gotPath)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Len(t, gotReqID, 36)
	assert.Equal(t, "acme", gotTenant)
	assert.Equal(t, "Aprovado", gotBody["status"])

	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, DecodeJSON(resp, &out))
	assert.Equal(t, 7, out.ID)
}

func TestNon2xxIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"Email já cadastrado."}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Post(context.Background(), "api/auth/signup", map[string]string{"email": "a@b.c"})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	err = CheckResponse(resp)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "Email já cadastrado.", apiErr.Message)
}

func TestCheckResponseMessageShapes(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: `{"error":"boom"}`, want: "boom"},
		{body: `{"message":"nope"}`, want: "nope"},
		{body: `{"title":"Unprocessable","detail":"validation failed"}`, want: "validation failed"},
		{body: `{"error":{"code":"x","message":"nested"}}`, want: "nested"},
		{body: `<html>bad gateway</html>`, want: ""},
	}
	for _, tt := range tests {
		resp := &http.Response{StatusCode: 500, Body: io.NopCloser(strings.NewReader(tt.body))}
		var apiErr *APIError
		require.ErrorAs(t, CheckResponse(resp), &apiErr)
		assert.Equal(t, tt.want, apiErr.Message, tt.body)
	}
	ok := &http.Response{StatusCode: 204, Body: io.NopCloser(strings.NewReader(""))}
	assert.NoError(t, CheckResponse(ok))
}

func TestDecodeMalformed(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(`{"jobs": [`))}
	var out map[string]any
	err := DecodeJSON(resp, &out)
	var mErr *MalformedResponseError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, 200, mErr.StatusCode)

	empty := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(" "))}
	assert.Error(t, DecodeJSON(empty, &out))

	empty = &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(""))}
	decoded, err := DecodeOptionalJSON(empty, &out)
	require.NoError(t, err)
	assert.False(t, decoded)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	var observed CallInfo
	c := New(base)
	c.Observer = func(info CallInfo) { observed = info }
	resp, err := c.Get(context.Background(), "/api/users/1")
	assert.Nil(t, resp)
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, http.MethodGet, tErr.Method)
	assert.True(t, errors.Unwrap(err) != nil)
	assert.Error(t, observed.Err)
	assert.Equal(t, "/api/users/1", observed.Path)
}

func TestObserverSeesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	var calls []CallInfo
	c := New(srv.URL)
	c.Observer = func(info CallInfo) { calls = append(calls, info) }
	resp, err := c.Delete(context.Background(), "/api/jobs/3")
	require.NoError(t, err)
	resp.Body.Close()
	require.Len(t, calls, 1)
	assert.Equal(t, http.StatusNoContent, calls[0].StatusCode)
	assert.Equal(t, http.MethodDelete, calls[0].Method)
	assert.NotEmpty(t, calls[0].RequestID)
}

func TestURLJoining(t *testing.T) {
	assert.Equal(t, "/api/jobs", New("").url("/api/jobs"))
	assert.Equal(t, "http://h:1/api/jobs", New("http://h:1/").url("api/jobs"))
	assert.Equal(t, "http://h:1/api/jobs", New("http://h:1").url("/api/jobs"))
}

func TestResolveBaseURL(t *testing.T) {
	t.Setenv(BaseURLEnv, "  https://api.example.com ")
	assert.Equal(t, "https://api.example.com", ResolveBaseURL())
	t.Setenv(BaseURLEnv, "")
	assert.Equal(t, "", ResolveBaseURL())
}
