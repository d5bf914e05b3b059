package handler

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pulse/config"
	"pulse/internal/domain/constants"
	"pulse/internal/domain/service"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPushHandler(t *testing.T) *SecurityEventHandler {
	t.Helper()

	return NewSecurityEventHandler(SecurityEventHandlerParams{
		Config: &config.Config{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func pushBody(t *testing.T, event *service.SecurityEvent, attributes map[string]string) string {
	t.Helper()

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var msg PubSubMessage
	msg.Subscription = "projects/local/subscriptions/security-events-sub"
	msg.Message.Data = base64.StdEncoding.EncodeToString(data)
	msg.Message.MessageID = "msg-1"
	msg.Message.PublishTime = time.Now().UTC().Format(time.RFC3339)
	msg.Message.Attributes = attributes

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	return string(body)
}

func TestSecurityEventHandler_HandlePush_Success(t *testing.T) {
	h := newPushHandler(t)

	event := &service.SecurityEvent{
		RequestID:  "req-1",
		Type:       constants.SecurityEventTheftDetected,
		IdentityID: "identity-1",
		OccurredAt: time.Now(),
	}

	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(pushBody(t, event, map[string]string{"request_id": "req-1"})))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.HandlePush(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityEventHandler_HandlePush_BadBase64(t *testing.T) {
	h := newPushHandler(t)

	body := `{"message":{"data":"%%%not-base64%%%","messageId":"msg-1"},"subscription":"sub"}`
	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.HandlePush(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSecurityEventHandler_HandlePush_BadEventJSON(t *testing.T) {
	h := newPushHandler(t)

	var msg PubSubMessage
	msg.Message.Data = base64.StdEncoding.EncodeToString([]byte("not json"))
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.HandlePush(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewSecurityEventHandler_PushAuthOnlyOutsideDevelop(t *testing.T) {
	cfg := &config.Config{
		PubSub: &config.PubSubConfig{Provider: constants.PubSubProviderGoogle, ProjectID: "p", TopicID: "t"},
	}
	cfg.Env.Env = constants.EnvDevelop

	h := NewSecurityEventHandler(SecurityEventHandlerParams{Config: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.False(t, h.verifyPushAuth)

	cfg.Env.Env = constants.EnvProduction
	h = NewSecurityEventHandler(SecurityEventHandlerParams{Config: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.True(t, h.verifyPushAuth)
}
