package zoom

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/response"
)

const (
	headerSignature = "x-zm-signature"
	headerTimestamp = "x-zm-request-timestamp"

	eventURLValidation = "endpoint.url_validation"
	eventMeetingStart  = "meeting.started"
	eventMeetingEnd    = "meeting.ended"

	maxClockSkew = 5 * time.Minute
	maxBodyBytes = 1 << 20
)

// StatusUpdater moves the event hosted in a Zoom meeting to a new status.
type StatusUpdater interface {
	SetStatusByMeeting(ctx context.Context, meetingID string, status models.EventStatus) error
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		PlainToken string `json:"plainToken"`
		Object     struct {
			ID json.Number `json:"id"`
		} `json:"object"`
	} `json:"payload"`
}

// WebhookHandler handles POST /webhooks/zoom.
type WebhookHandler struct {
	secret string
	events StatusUpdater
	logger *zap.Logger
	now    func() time.Time
}

// NewWebhookHandler creates a handler verifying requests with secret.
func NewWebhookHandler(secret string, events StatusUpdater, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{secret: secret, events: events, logger: logger, now: time.Now}
}

// Sign returns the x-zm-signature value for a body sent at ts.
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) verify(ts, sig string, body []byte) bool {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	// Zoom sends seconds; accept milliseconds as well.
	if sec > 1e12 {
		sec /= 1000
	}
	skew := h.now().Sub(time.Unix(sec, 0))
	if skew > maxClockSkew || skew < -maxClockSkew {
		return false
	}
	return hmac.Equal([]byte(Sign(h.secret, ts, body)), []byte(sig))
}

// Handle verifies the signature and dispatches the event.
func (h *WebhookHandler) Handle(c *gin.Context) {
	if h.secret == "" {
		response.ServiceUnavailable(c, "zoom webhooks are not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(c, "could not read body")
		return
	}
	if !h.verify(c.GetHeader(headerTimestamp), c.GetHeader(headerSignature), body) {
		response.Unauthorized(c, "invalid signature")
		return
	}
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		response.BadRequest(c, "invalid payload")
		return
	}

	switch wb.Event {
	case eventURLValidation:
		mac := hmac.New(sha256.New, []byte(h.secret))
		mac.Write([]byte(wb.Payload.PlainToken))
		c.JSON(http.StatusOK, gin.H{
			"plainToken":     wb.Payload.PlainToken,
			"encryptedToken": hex.EncodeToString(mac.Sum(nil)),
		})
		return
	case eventMeetingStart:
		h.setStatus(c, wb.Payload.Object.ID.String(), models.EventOngoing)
	case eventMeetingEnd:
		h.setStatus(c, wb.Payload.Object.ID.String(), models.EventCompleted)
	default:
		h.logger.Debug("zoom webhook ignored", zap.String("event", wb.Event))
	}
	if !c.Writer.Written() {
		response.OK(c, nil)
	}
}

func (h *WebhookHandler) setStatus(c *gin.Context, meetingID string, status models.EventStatus) {
	err := h.events.SetStatusByMeeting(c.Request.Context(), meetingID, status)
	switch {
	case err == nil:
		h.logger.Info("event status from zoom", zap.String("meeting_id", meetingID), zap.String("status", string(status)))
	case apperr.KindOf(err) == apperr.KindNotFound:
		h.logger.Debug("zoom meeting not linked to an event", zap.String("meeting_id", meetingID))
	default:
		h.logger.Error("apply zoom event failed", zap.String("meeting_id", meetingID), zap.Error(err))
		response.Internal(c, "failed to apply event")
	}
}
