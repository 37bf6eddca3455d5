// Package zoom talks to the Zoom REST API and receives its webhooks.
package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const requestTimeout = 15 * time.Second

// Config holds server-to-server OAuth app credentials.
type Config struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	TokenURL     string
}

// MeetingRequest describes a meeting to create.
type MeetingRequest struct {
	Topic           string
	Agenda          string
	StartTime       time.Time
	DurationMinutes int
}

// Meeting is the subset of Zoom's meeting object the platform stores.
type Meeting struct {
	ID       string
	JoinURL  string
	StartURL string
	Password string
}

// Client is a Zoom API client authenticated with the account_credentials grant.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient builds a client. Tokens are fetched lazily and cached until expiry.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {cfg.AccountID},
		},
	}
	base := &http.Client{Timeout: requestTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := cc.Client(ctx)
	hc.Timeout = requestTimeout
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		logger:  logger,
	}
}

type createMeetingBody struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"`
	StartTime string          `json:"start_time"`
	Duration  int             `json:"duration"`
	Timezone  string          `json:"timezone"`
	Agenda    string          `json:"agenda,omitempty"`
	Settings  meetingSettings `json:"settings"`
}

type meetingSettings struct {
	JoinBeforeHost bool `json:"join_before_host"`
	WaitingRoom    bool `json:"waiting_room"`
}

type meetingResponse struct {
	ID       json.Number `json:"id"`
	JoinURL  string      `json:"join_url"`
	StartURL string      `json:"start_url"`
	Password string      `json:"password"`
}

// scheduledMeeting is Zoom's meeting type for a one-off meeting at a fixed time.
const scheduledMeeting = 2

// agendaLimit is Zoom's maximum agenda length.
const agendaLimit = 2000

// CreateMeeting creates a scheduled meeting owned by the account's default user.
func (c *Client) CreateMeeting(ctx context.Context, req MeetingRequest) (*Meeting, error) {
	agenda := req.Agenda
	if len(agenda) > agendaLimit {
		agenda = agenda[:agendaLimit]
	}
	body, err := json.Marshal(createMeetingBody{
		Topic:     req.Topic,
		Type:      scheduledMeeting,
		StartTime: req.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  req.DurationMinutes,
		Timezone:  "UTC",
		Agenda:    agenda,
		Settings:  meetingSettings{WaitingRoom: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal meeting: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/me/meetings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("zoom create meeting: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read zoom response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("zoom create meeting: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	var m meetingResponse
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode zoom meeting: %w", err)
	}
	c.logger.Info("zoom meeting created", zap.String("meeting_id", m.ID.String()), zap.String("topic", req.Topic))
	return &Meeting{ID: m.ID.String(), JoinURL: m.JoinURL, StartURL: m.StartURL, Password: m.Password}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..." + strconv.Itoa(len(s)-n) + " more bytes"
}
