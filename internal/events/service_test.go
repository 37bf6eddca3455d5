package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/mailer"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/internal/zoom"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.Event
	subs   map[uuid.UUID]*models.Submission
}

func newMemStore() *memStore {
	return &memStore{events: map[uuid.UUID]*models.Event{}, subs: map[uuid.UUID]*models.Submission{}}
}

func (m *memStore) Create(_ context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = uuid.New()
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, apperr.NotFound("event not found")
	}
	cp := *ev
	return &cp, nil
}

func (m *memStore) GetByMeetingID(_ context.Context, meetingID string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.ZoomMeetingID == meetingID {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("event not found")
}

func (m *memStore) List(_ context.Context, publicOnly bool) ([]*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Event
	for _, ev := range m.events {
		if publicOnly && !ev.Status.Public() {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, p Patch) (*models.Event, *models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, nil, apperr.NotFound("event not found")
	}
	prev := ev.Status
	if p.Status != nil && !prev.CanTransition(*p.Status) {
		return nil, nil, apperr.InvalidTransition(string(prev), string(*p.Status))
	}
	if p.ScheduledAt != nil {
		ev.ScheduledAt = *p.ScheduledAt
	}
	if p.Status != nil {
		ev.Status = *p.Status
	}
	if p.ZoomMeetingID != nil {
		ev.ZoomMeetingID = *p.ZoomMeetingID
	}
	if p.ZoomJoinURL != nil {
		ev.ZoomJoinURL = *p.ZoomJoinURL
	}
	if p.ZoomStartURL != nil {
		ev.ZoomStartURL = *p.ZoomStartURL
	}
	if p.ZoomPassword != nil {
		ev.ZoomPassword = *p.ZoomPassword
	}
	var presented *models.Submission
	if ev.SubmissionID != nil {
		sub := m.subs[*ev.SubmissionID]
		if p.ScheduledAt != nil {
			at := ev.ScheduledAt
			sub.ScheduledAt = &at
		}
		if ev.Status == models.EventCompleted && prev != models.EventCompleted && sub.Status == models.SubmissionScheduled {
			sub.Status = models.SubmissionPresented
			cp := *sub
			presented = &cp
		}
	}
	cp := *ev
	return &cp, presented, nil
}

// linked seeds a scheduled submission and its event.
func (m *memStore) linked(at time.Time) (*models.Event, *models.Submission) {
	sub := &models.Submission{ID: uuid.New(), Title: "Clientelism and Electoral Accountability", AuthorName: "Ana Ruiz",
		AuthorEmail: "ana@example.org", Status: models.SubmissionScheduled}
	ev := &models.Event{ID: uuid.New(), Title: sub.Title, ScheduledAt: at, Status: models.EventScheduled,
		PresenterName: sub.AuthorName, SubmissionID: &sub.ID}
	a := at
	sub.ScheduledAt, sub.EventID = &a, &ev.ID
	m.subs[sub.ID], m.events[ev.ID] = sub, ev
	return ev, sub
}

type staticRecipients struct {
	regs []*models.Registration
}

func (s staticRecipients) Recipients(_ context.Context, section string) ([]*models.Registration, error) {
	var out []*models.Registration
	for _, r := range s.regs {
		if section == "" || r.HasSection(section) {
			out = append(out, r)
		}
	}
	return out, nil
}

type flakySender struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []string
}

func (f *flakySender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, msg.To)
	return nil
}

type countingRecorder struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (r *countingRecorder) Record(_ context.Context, _ mailer.Message, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
	} else {
		r.ok++
	}
	return nil
}

type queueNotifier struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (q *queueNotifier) Notify(_ context.Context, msg mailer.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

type fakeMeetings struct {
	calls int
	err   error
}

func (f *fakeMeetings) CreateMeeting(_ context.Context, req zoom.MeetingRequest) (*zoom.Meeting, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &zoom.Meeting{ID: "123", JoinURL: "https://zoom.us/j/123", StartURL: "https://zoom.us/s/123", Password: "pw"}, nil
}

type fixture struct {
	svc      *Service
	store    *memStore
	sender   *flakySender
	recorder *countingRecorder
	notifier *queueNotifier
}

func newFixture(regs ...*models.Registration) *fixture {
	f := &fixture{
		store:    newMemStore(),
		sender:   &flakySender{fail: map[string]bool{}},
		recorder: &countingRecorder{},
		notifier: &queueNotifier{},
	}
	f.svc = NewService(Config{
		Store:      f.store,
		Recipients: staticRecipients{regs: regs},
		Sender:     f.sender,
		Recorder:   f.recorder,
		Notifier:   f.notifier,
		Composer:   mailer.NewComposer("Seminar", "https://seminar.example.org"),
	})
	return f
}

func reg(name, email string, sections ...string) *models.Registration {
	return &models.Registration{ID: uuid.New(), Name: name, Email: email, Sections: sections}
}

func TestUpdateRescheduleSyncsLinkedSubmission(t *testing.T) {
	f := newFixture()
	ev, sub := f.store.linked(time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC))

	moved := time.Date(2026, 3, 16, 15, 0, 0, 0, time.UTC)
	got, err := f.svc.Update(context.Background(), ev.ID, Patch{ScheduledAt: &moved})
	require.NoError(t, err)
	assert.True(t, moved.Equal(got.ScheduledAt))
	assert.True(t, moved.Equal(*f.store.subs[sub.ID].ScheduledAt))
}

func TestUpdateUnlinkedEventLeavesSubmissionsAlone(t *testing.T) {
	f := newFixture()
	_, sub := f.store.linked(time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC))
	before := *f.store.subs[sub.ID].ScheduledAt

	standalone, err := f.svc.CreateStandalone(context.Background(), CreateInput{
		Title: "Methods roundtable", ScheduledAt: before.Add(time.Hour), PresenterName: "Panel", PresenterEmail: "panel@example.org",
	})
	require.NoError(t, err)
	assert.Nil(t, standalone.SubmissionID)
	assert.Equal(t, models.DefaultEventDurationMinutes, standalone.DurationMinutes)

	moved := before.Add(48 * time.Hour)
	_, err = f.svc.Update(context.Background(), standalone.ID, Patch{ScheduledAt: &moved})
	require.NoError(t, err)
	assert.True(t, before.Equal(*f.store.subs[sub.ID].ScheduledAt))
}

func TestCompletingEventPresentsSubmission(t *testing.T) {
	f := newFixture()
	ev, sub := f.store.linked(time.Now())

	completed := models.EventCompleted
	_, err := f.svc.Update(context.Background(), ev.ID, Patch{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionPresented, f.store.subs[sub.ID].Status)
	require.Len(t, f.notifier.msgs, 1)
	assert.Equal(t, models.EmailTypeStatusUpdate, f.notifier.msgs[0].Type)
}

func TestUpdateValidation(t *testing.T) {
	f := newFixture()
	ev, _ := f.store.linked(time.Now())

	_, err := f.svc.Update(context.Background(), ev.ID, Patch{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	bogus := models.EventStatus("POSTPONED")
	_, err = f.svc.Update(context.Background(), ev.ID, Patch{Status: &bogus})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	bad := "not a url"
	_, err = f.svc.Update(context.Background(), ev.ID, Patch{ZoomJoinURL: &bad})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.Update(context.Background(), uuid.New(), Patch{ZoomPassword: &bad})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestNotifyRegistrantsNoRecipients(t *testing.T) {
	f := newFixture(reg("Li Wei", "li@example.org", "latam-politics"))
	ev, _ := f.store.linked(time.Now())

	_, err := f.svc.NotifyRegistrants(context.Background(), ev.ID, "asia-politics")
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, "no recipients found", ae.Message)
	assert.Empty(t, f.sender.sent)
	assert.Zero(t, f.recorder.ok+f.recorder.failed)
}

func TestNotifyRegistrantsDedupesAndCounts(t *testing.T) {
	f := newFixture(
		reg("Li Wei", "li@example.org", "asia-politics"),
		reg("Li Wei", "LI@example.org", "asia-politics"),
		reg("Sam Obi", "sam@example.org", "asia-politics", "methods"),
		reg("Bounce", "bounce@example.org", "asia-politics"),
		reg("Other", "other@example.org", "methods"),
	)
	f.sender.fail["bounce@example.org"] = true
	ev, _ := f.store.linked(time.Now())

	res, err := f.svc.NotifyRegistrants(context.Background(), ev.ID, " Asia-Politics ")
	require.NoError(t, err)
	assert.Equal(t, NotifyResult{Sent: 2, Failed: 1, TotalRecipients: 3}, *res)
	assert.ElementsMatch(t, []string{"li@example.org", "sam@example.org"}, f.sender.sent)
	assert.Equal(t, 2, f.recorder.ok)
	assert.Equal(t, 1, f.recorder.failed)

	res, err = f.svc.NotifyRegistrants(context.Background(), ev.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalRecipients)
}

func TestPublicViewHidesNonPublicEvents(t *testing.T) {
	f := newFixture()
	ev, _ := f.store.linked(time.Now())
	ev2, _ := f.store.linked(time.Now())
	f.store.events[ev2.ID].Status = models.EventCancelled
	f.store.events[ev.ID].ZoomStartURL = "https://zoom.us/s/host"

	pub, err := f.svc.GetPublic(context.Background(), ev.ID)
	require.NoError(t, err)
	raw, err := json.Marshal(pub)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "zoom.us/s/host")

	_, err = f.svc.GetPublic(context.Background(), ev2.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	list, err := f.svc.ListPublic(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ev.ID, list[0].ID)
}

func TestCreateZoomMeeting(t *testing.T) {
	f := newFixture()
	ev, _ := f.store.linked(time.Now().Add(time.Hour))

	_, err := f.svc.CreateZoomMeeting(context.Background(), ev.ID)
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))

	meetings := &fakeMeetings{}
	f.svc.meetings = meetings
	got, err := f.svc.CreateZoomMeeting(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "123", got.ZoomMeetingID)
	assert.Equal(t, "https://zoom.us/j/123", got.ZoomJoinURL)

	_, err = f.svc.CreateZoomMeeting(context.Background(), ev.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, 1, meetings.calls)
}

func TestSetStatusByMeeting(t *testing.T) {
	f := newFixture()
	ev, sub := f.store.linked(time.Now())
	f.store.events[ev.ID].ZoomMeetingID = "555"

	require.NoError(t, f.svc.SetStatusByMeeting(context.Background(), "555", models.EventOngoing))
	assert.Equal(t, models.EventOngoing, f.store.events[ev.ID].Status)

	require.NoError(t, f.svc.SetStatusByMeeting(context.Background(), "555", models.EventCompleted))
	assert.Equal(t, models.SubmissionPresented, f.store.subs[sub.ID].Status)

	err := f.svc.SetStatusByMeeting(context.Background(), "999", models.EventOngoing)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestNotifyHandlerNoRecipients(t *testing.T) {
	f := newFixture()
	ev, _ := f.store.linked(time.Now())
	h := NewHandler(f.svc, nil, nil)
	r := gin.New()
	r.POST("/events/:id/notify", h.Notify)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events/"+ev.ID.String()+"/notify", strings.NewReader(`{"section":"asia-politics"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"no recipients found"}`, w.Body.String())
}

func TestNotifyRegistrantsMatchesStoredSectionForm(t *testing.T) {
	f := newFixture(
		reg("Li Wei", "li@example.org", "asia-politics"),
		reg("Other", "other@example.org", "methods"),
	)
	ev, _ := f.store.linked(time.Now())

	res, err := f.svc.NotifyRegistrants(context.Background(), ev.ID, "Asia  Politics")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalRecipients)
	assert.Equal(t, []string{"li@example.org"}, f.sender.sent)
}

func TestEventTransitions(t *testing.T) {
	cases := []struct {
		from, to models.EventStatus
		ok       bool
	}{
		{models.EventScheduled, models.EventOngoing, true},
		{models.EventScheduled, models.EventCompleted, true},
		{models.EventScheduled, models.EventCancelled, true},
		{models.EventOngoing, models.EventCompleted, true},
		{models.EventOngoing, models.EventScheduled, false},
		{models.EventCompleted, models.EventScheduled, false},
		{models.EventCompleted, models.EventCancelled, false},
		{models.EventCompleted, models.EventCompleted, true},
		{models.EventCancelled, models.EventScheduled, true},
		{models.EventCancelled, models.EventCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestUpdateRejectsIllegalEventTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ev, sub := f.store.linked(time.Now())

	cancelled, scheduled, completed := models.EventCancelled, models.EventScheduled, models.EventCompleted
	_, err := f.svc.Update(ctx, ev.ID, Patch{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionScheduled, f.store.subs[sub.ID].Status)

	_, err = f.svc.Update(ctx, ev.ID, Patch{Status: &completed})
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	_, err = f.svc.Update(ctx, ev.ID, Patch{Status: &scheduled})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, ev.ID, Patch{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionPresented, f.store.subs[sub.ID].Status)

	_, err = f.svc.Update(ctx, ev.ID, Patch{Status: &scheduled})
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.Equal(t, models.EventCompleted, f.store.events[ev.ID].Status)
}

func TestSetStatusByMeetingIgnoresFinishedEvent(t *testing.T) {
	f := newFixture()
	ev, _ := f.store.linked(time.Now())
	f.store.events[ev.ID].ZoomMeetingID = "777"
	f.store.events[ev.ID].Status = models.EventCompleted

	require.NoError(t, f.svc.SetStatusByMeeting(context.Background(), "777", models.EventOngoing))
	assert.Equal(t, models.EventCompleted, f.store.events[ev.ID].Status)
}
