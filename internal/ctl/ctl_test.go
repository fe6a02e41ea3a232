package ctl

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/pkg/api/auth"
	"chatrelay/pkg/config"
)

func TestClientSendsIdentityHeaders(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"message":{"id":"m1","sender":"alice","receiver":"bob","body":"hi"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "fk", time.Second)
	res, err := c.Send(Identity{UserID: "alice", Signature: "sig"}, "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m1", res.Message.ID)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/v1/chats/bob/messages", got.URL.Path)
	assert.Equal(t, "Bearer fk", got.Header.Get("Authorization"))
	assert.Equal(t, "alice", got.Header.Get("X-User-ID"))
	assert.Equal(t, "sig", got.Header.Get("X-User-Signature"))
	assert.JSONEq(t, `{"body":"hi"}`, string(body))
}

func TestClientSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"frontend keys cannot sign"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "fk", 0).Sign("alice")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "frontend keys cannot sign", apiErr.Message)
}

func TestSampleConfigIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeSampleConfig(path, config.EngineSQLite, false))
	require.Error(t, writeSampleConfig(path, config.EngineSQLite, false), "existing file needs --force")
	require.NoError(t, writeSampleConfig(path, config.EngineSQLite, true))

	cfg, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	eff := config.EffectiveConfigResult{Config: cfg, DBPath: cfg.Server.DBPath}
	require.NoError(t, config.ValidateConfig(&eff))

	assert.Equal(t, config.EngineSQLite, cfg.Storage.Engine)
	assert.True(t, cfg.Storage.Sync())
	assert.Equal(t, "0 2 * * *", cfg.Retention.Cron)
	assert.Equal(t, int64(64*1000), cfg.Gateway.MaxMessageSize.Int64())
	require.Len(t, cfg.Security.APIKeys.Backend, 1)
	assert.NotEqual(t, cfg.Security.APIKeys.Backend[0], cfg.Security.APIKeys.Frontend[0])
}

func TestBenchTargets(t *testing.T) {
	cfg := benchConfig{Host: "http://relay:8080/", APIKey: "bk", Sender: "a", Receiver: "b", Payload: 4}

	cfg.Pattern = patternSend
	ts, err := benchTargets(cfg)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "http://relay:8080/v1/chats/b/messages", ts[0].URL)
	assert.Equal(t, "a", ts[0].Header.Get("X-User-ID"))
	var req map[string]string
	require.NoError(t, json.Unmarshal(ts[0].Body, &req))
	assert.Equal(t, "xxxx", req["body"])

	cfg.Pattern = patternHistory
	ts, err = benchTargets(cfg)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, ts[0].Method)
	assert.Empty(t, ts[0].Body)

	cfg.Pattern = "flood"
	_, err = benchTargets(cfg)
	assert.Error(t, err)
}

func TestLocalSignatureMatchesServer(t *testing.T) {
	sig := auth.CreateHMACSignature("alice", "bk")
	assert.True(t, auth.VerifyHMACSignature("alice", sig, map[string]struct{}{"bk": {}}))
	assert.Equal(t, "***", maskKey("short"))
	assert.Equal(t, "bk_1***wxyz", maskKey("bk_1234wxyz"))
}
