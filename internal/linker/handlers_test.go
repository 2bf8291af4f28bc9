package linker

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neekaru/whatsapp-linker/internal/app"
	"github.com/neekaru/whatsapp-linker/internal/backend"
	"github.com/neekaru/whatsapp-linker/internal/registry"
	"github.com/neekaru/whatsapp-linker/internal/storage"
)

func newTestRouter(t *testing.T, factory backend.Factory) (*gin.Engine, *Controller, *app.App) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctrl, application, _ := newTestController(t, factory)
	h := NewHandlers(application, ctrl)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/connect", h.ConnectHandler)
	api.POST("/generate-pair-code", h.GeneratePairCodeHandler)
	api.POST("/reconnect", h.ReconnectHandler)
	api.POST("/restart/:identity", h.RestartHandler)
	api.GET("/status/:identity", h.StatusHandler)
	api.DELETE("/disconnect/:identity", h.DisconnectHandler)
	api.GET("/clients", h.ClientsHandler)
	api.GET("/credentials/:identity", h.CredentialsHandler)
	api.GET("/session-token/:identity", h.SessionTokenHandler)
	return r, ctrl, application
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestConnectReturnsPairingCode(t *testing.T) {
	stub := newStubBackend("")
	r, _, _ := newTestRouter(t, scriptedFactory(stub, func(s *stubBackend) {
		time.Sleep(10 * time.Millisecond)
		s.emit(backend.Event{Kind: backend.EventLinkingCode, Code: "ABC-123"})
	}))

	w, out := doJSON(t, r, http.MethodPost, "/api/connect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "ABC-123", out["linkingCode"])
	assert.Equal(t, "15551234567", out["phoneNumber"])
	assert.NotEmpty(t, out["sessionId"])
}

func TestConnectWhileActiveConflicts(t *testing.T) {
	stub := newStubBackend("")
	r, _, _ := newTestRouter(t, scriptedFactory(stub, func(s *stubBackend) {
		time.Sleep(10 * time.Millisecond)
		s.emit(backend.Event{Kind: backend.EventLinkingCode, Code: "ABC-123"})
	}))

	w, _ := doJSON(t, r, http.MethodPost, "/api/connect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// The first session is still awaiting pairing, so a second attempt for
	// the same number must be rejected.
	w, out := doJSON(t, r, http.MethodPost, "/api/connect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "IdentityAlreadyActive", out["error"])
}

func TestStatusAndCredentialsAfterConnect(t *testing.T) {
	stub := newStubBackend("tok-1")
	r, ctrl, _ := newTestRouter(t, scriptedFactory(stub, func(s *stubBackend) {
		time.Sleep(10 * time.Millisecond)
		s.emit(backend.Event{Kind: backend.EventLinkingCode, Code: "ABC-123"})
		s.emit(backend.Event{Kind: backend.EventAuthenticated})
		s.setConnected(true)
		s.emit(backend.Event{Kind: backend.EventReady})
	}))

	w, out := doJSON(t, r, http.MethodPost, "/api/connect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusOK, w.Code)
	sessionID := out["sessionId"].(string)

	require.Eventually(t, func() bool {
		snap, err := ctrl.Status("15551234567")
		return err == nil && snap.State == registry.StateConnected
	}, time.Second, 10*time.Millisecond)

	w, out = doJSON(t, r, http.MethodGet, "/api/status/15551234567", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["connected"])
	assert.Equal(t, "Connected", out["state"])

	w, out = doJSON(t, r, http.MethodGet, "/api/credentials/15551234567", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok-1", out["token"])
	assert.Equal(t, sessionID, out["sessionId"])

	// The legacy token endpoint serves the same record.
	w, out = doJSON(t, r, http.MethodGet, "/api/session-token/15551234567", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok-1", out["token"])
}

func TestDisconnectThenStatusReportsNoClient(t *testing.T) {
	stub := newStubBackend("tok-1")
	r, _, _ := newTestRouter(t, scriptedFactory(stub, func(s *stubBackend) {
		s.setConnected(true)
		s.emit(backend.Event{Kind: backend.EventReady})
	}))

	w, _ := doJSON(t, r, http.MethodPost, "/api/connect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, out := doJSON(t, r, http.MethodDelete, "/api/disconnect/15551234567", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])

	w, out = doJSON(t, r, http.MethodGet, "/api/status/15551234567", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["connected"])
	assert.Equal(t, "No client found", out["message"])

	// Credentials survive a plain disconnect.
	w, _ = doJSON(t, r, http.MethodGet, "/api/credentials/15551234567", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, out = doJSON(t, r, http.MethodDelete, "/api/disconnect/15551234567", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", out["error"])
}

func TestDisconnectWipeRemovesCredentialsOverHTTP(t *testing.T) {
	stub := newStubBackend("tok-1")
	r, _, _ := newTestRouter(t, scriptedFactory(stub, func(s *stubBackend) {
		s.setConnected(true)
		s.emit(backend.Event{Kind: backend.EventReady})
	}))

	w, _ := doJSON(t, r, http.MethodPost, "/api/connect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/disconnect/15551234567?wipe=true", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/credentials/15551234567", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGeneratePairCodeIgnoresRequestedMethod(t *testing.T) {
	var gotOpts backend.Options
	stub := newStubBackend("")
	factory := func(_ context.Context, opts backend.Options, _ *log.Logger) (backend.Client, <-chan backend.Event, error) {
		gotOpts = opts
		go func() {
			time.Sleep(10 * time.Millisecond)
			stub.emit(backend.Event{Kind: backend.EventLinkingCode, Code: "ABC-123"})
		}()
		return stub, stub.events, nil
	}

	r, _, _ := newTestRouter(t, factory)

	w, out := doJSON(t, r, http.MethodPost, "/api/generate-pair-code", `{"phoneNumber":"15551234567","method":"qr-code"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ABC-123", out["linkingCode"])
	assert.False(t, gotOpts.UseQR)
}

func TestConnectValidation(t *testing.T) {
	stub := newStubBackend("")
	r, _, _ := newTestRouter(t, scriptedFactory(stub, nil))

	w, out := doJSON(t, r, http.MethodPost, "/api/connect", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ValidationError", out["error"])

	w, out = doJSON(t, r, http.MethodPost, "/api/connect", `{"phoneNumber":"abc"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ValidationError", out["error"])
}

func TestReconnectEndpoint(t *testing.T) {
	stub := newStubBackend("tok-1")
	r, _, application := newTestRouter(t, scriptedFactory(stub, func(s *stubBackend) {
		s.setConnected(true)
		s.emit(backend.Event{Kind: backend.EventReady})
	}))

	// Without a persisted record there is nothing to reconnect.
	w, out := doJSON(t, r, http.MethodPost, "/api/reconnect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", out["error"])

	require.NoError(t, application.Store.PutCredential("15551234567", storage.CredentialRecord{
		Identity: "15551234567", SessionID: "old-sid", Token: "tok-old", IssuedAt: time.Now(),
	}))

	w, out = doJSON(t, r, http.MethodPost, "/api/reconnect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.NotEqual(t, "old-sid", out["sessionId"])
}

func TestRestartEndpoint(t *testing.T) {
	var stubs []*stubBackend
	factory := func(_ context.Context, _ backend.Options, _ *log.Logger) (backend.Client, <-chan backend.Event, error) {
		stub := newStubBackend("")
		stubs = append(stubs, stub)
		go func(s *stubBackend) {
			time.Sleep(10 * time.Millisecond)
			s.emit(backend.Event{Kind: backend.EventLinkingCode, Code: "ABC-123"})
		}(stub)
		return stub, stub.events, nil
	}

	r, _, _ := newTestRouter(t, factory)

	w, out := doJSON(t, r, http.MethodPost, "/api/connect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusOK, w.Code)
	firstSession := out["sessionId"].(string)

	// Restart supersedes the awaiting session instead of conflicting.
	w, out = doJSON(t, r, http.MethodPost, "/api/restart/15551234567", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.NotEqual(t, firstSession, out["sessionId"])
	assert.Equal(t, "ABC-123", out["linkingCode"])
}

func TestClientsListingRedacted(t *testing.T) {
	stub := newStubBackend("tok-1")
	r, _, _ := newTestRouter(t, scriptedFactory(stub, func(s *stubBackend) {
		time.Sleep(10 * time.Millisecond)
		s.emit(backend.Event{Kind: backend.EventLinkingCode, Code: "ABC-123"})
	}))

	w, _ := doJSON(t, r, http.MethodPost, "/api/connect", `{"phoneNumber":"15551234567"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, out := doJSON(t, r, http.MethodGet, "/api/clients", "")
	require.Equal(t, http.StatusOK, w.Code)
	clients := out["clients"].([]any)
	require.Len(t, clients, 1)

	entry := clients[0].(map[string]any)
	assert.Equal(t, "15551234567", entry["phoneNumber"])
	assert.NotContains(t, entry, "linkingCode")
	assert.NotContains(t, entry, "token")
}
