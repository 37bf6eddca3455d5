package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCreateMeetingUsesAccountCredentials(t *testing.T) {
	var tokenCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenCalls++
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "account_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, "acct-1", r.PostForm.Get("account_id"))
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "cid", user)
			assert.Equal(t, "csecret", pass)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
		case "/v2/users/me/meetings":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			var body createMeetingBody
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Clientelism and Electoral Accountability", body.Topic)
			assert.Equal(t, "2026-03-09T15:00:00Z", body.StartTime)
			assert.Equal(t, 90, body.Duration)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":85746065432,"join_url":"https://zoom.us/j/85746065432","start_url":"https://zoom.us/s/85746065432","password":"abc"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{
		AccountID:    "acct-1",
		ClientID:     "cid",
		ClientSecret: "csecret",
		APIBaseURL:   srv.URL + "/v2/",
		TokenURL:     srv.URL + "/oauth/token",
	}, nil)

	req := MeetingRequest{
		Topic:           "Clientelism and Electoral Accountability",
		StartTime:       time.Date(2026, 3, 9, 16, 0, 0, 0, time.FixedZone("CET", 3600)),
		DurationMinutes: 90,
	}
	m, err := c.CreateMeeting(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "85746065432", m.ID)
	assert.Equal(t, "https://zoom.us/j/85746065432", m.JoinURL)
	assert.Equal(t, "abc", m.Password)

	_, err = c.CreateMeeting(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls, "token is cached")
}

func TestCreateMeetingSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":429,"message":"rate limit"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AccountID: "a", ClientID: "b", ClientSecret: "c", APIBaseURL: srv.URL, TokenURL: srv.URL + "/oauth/token"}, nil)
	_, err := c.CreateMeeting(context.Background(), MeetingRequest{Topic: "t", StartTime: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

type fakeUpdater struct {
	calls map[string]models.EventStatus
	err   error
}

func (f *fakeUpdater) SetStatusByMeeting(_ context.Context, meetingID string, status models.EventStatus) error {
	if f.err != nil {
		return f.err
	}
	f.calls[meetingID] = status
	return nil
}

func webhookRequest(t *testing.T, h *WebhookHandler, secret string, ts time.Time, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.POST("/webhooks/zoom", h.Handle)
	stamp := strconv.FormatInt(ts.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zoom", bytes.NewBufferString(body))
	req.Header.Set(headerTimestamp, stamp)
	req.Header.Set(headerSignature, Sign(secret, stamp, []byte(body)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookMeetingLifecycle(t *testing.T) {
	up := &fakeUpdater{calls: map[string]models.EventStatus{}}
	h := NewWebhookHandler("whsec", up, nil)
	now := time.Now()

	w := webhookRequest(t, h, "whsec", now, `{"event":"meeting.started","payload":{"object":{"id":85746065432}}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = webhookRequest(t, h, "whsec", now, `{"event":"meeting.ended","payload":{"object":{"id":"111"}}}`)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, models.EventOngoing, up.calls["85746065432"])
	assert.Equal(t, models.EventCompleted, up.calls["111"])
}

func TestWebhookURLValidation(t *testing.T) {
	h := NewWebhookHandler("whsec", &fakeUpdater{}, nil)
	w := webhookRequest(t, h, "whsec", time.Now(), `{"event":"endpoint.url_validation","payload":{"plainToken":"qgg8vlvZRS6UYooatFL8Aw"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "qgg8vlvZRS6UYooatFL8Aw", out["plainToken"])
	assert.Len(t, out["encryptedToken"], 64)
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	h := NewWebhookHandler("whsec", &fakeUpdater{calls: map[string]models.EventStatus{}}, nil)
	body := `{"event":"meeting.started","payload":{"object":{"id":1}}}`

	w := webhookRequest(t, h, "wrong", time.Now(), body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = webhookRequest(t, h, "whsec", time.Now().Add(-time.Hour), body)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "stale timestamp")
}

func TestWebhookUnknownMeetingIsAcknowledged(t *testing.T) {
	h := NewWebhookHandler("whsec", &fakeUpdater{err: apperr.NotFound("event not found")}, nil)
	w := webhookRequest(t, h, "whsec", time.Now(), `{"event":"meeting.ended","payload":{"object":{"id":9}}}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookDisabledWithoutSecret(t *testing.T) {
	h := NewWebhookHandler("", &fakeUpdater{}, nil)
	w := webhookRequest(t, h, "", time.Now(), `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
