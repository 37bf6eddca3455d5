package submissions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/mailer"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/storage"
)

type memStore struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]*models.Submission
	events map[uuid.UUID]*models.Event
}

func newMemStore() *memStore {
	return &memStore{subs: map[uuid.UUID]*models.Submission{}, events: map[uuid.UUID]*models.Event{}}
}

func (m *memStore) Create(_ context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.UpdatedAt = s.SubmittedAt
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, apperr.NotFound("submission not found")
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) List(_ context.Context, status *models.SubmissionStatus) ([]*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Submission
	for _, s := range m.subs {
		if status == nil || s.Status == *status {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.SubmissionStatus, reviewedAt *time.Time) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, apperr.NotFound("submission not found")
	}
	if s.Status != from {
		return nil, apperr.Conflict("submission status changed concurrently")
	}
	s.Status = to
	if reviewedAt != nil {
		s.ReviewedAt = reviewedAt
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Schedule(_ context.Context, id uuid.UUID, ev *models.Event, now time.Time) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, apperr.NotFound("submission not found")
	}
	if s.EventID != nil {
		return nil, apperr.Conflict("submission already has an event")
	}
	if !CanTransition(s.Status, models.SubmissionScheduled) {
		return nil, apperr.InvalidTransition(string(s.Status), string(models.SubmissionScheduled))
	}
	ev.ID = uuid.New()
	stored := *ev
	m.events[ev.ID] = &stored
	at := ev.ScheduledAt
	s.Status = models.SubmissionScheduled
	s.ScheduledAt = &at
	s.EventID = &stored.ID
	if s.ReviewedAt == nil {
		s.ReviewedAt = &now
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) CountSince(_ context.Context, since time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	var oldest *time.Time
	for _, s := range m.subs {
		if s.SubmittedAt.Before(since) {
			continue
		}
		n++
		if oldest == nil || s.SubmittedAt.Before(*oldest) {
			t := s.SubmittedAt
			oldest = &t
		}
	}
	return n, oldest, nil
}

func (m *memStore) EventByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, apperr.NotFound("event not found")
	}
	cp := *ev
	return &cp, nil
}

type fixedSettings struct{ s models.Settings }

func (f *fixedSettings) Get(context.Context) (*models.Settings, error) {
	cp := f.s
	return &cp, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []mailer.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg mailer.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.msgs {
		out = append(out, m.Type)
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *memStore
	settings *fixedSettings
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		settings: &fixedSettings{s: models.Settings{SiteName: "Seminar", SubmissionsOpen: true}},
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Config{
		Store:           f.store,
		Settings:        f.settings,
		Composer:        mailer.NewComposer("Comparative Politics Seminar", "https://seminar.example.org"),
		Notifier:        f.notifier,
		AdminRecipients: []string{"chair@example.org", "editor@example.org"},
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func validInput() CreateInput {
	return CreateInput{
		Title:             "Clientelism and Electoral Accountability",
		Abstract:          "We study how clientelist networks shape voter responses to incumbent performance across districts.",
		AuthorName:        "Ana Ruiz",
		AuthorEmail:       "Ana.Ruiz@Example.org",
		AuthorAffiliation: "University of Somewhere",
		Keywords:          "clientelism, accountability",
		ResearchField:     "Comparative Politics",
	}
}

func TestCreateSetsPending(t *testing.T) {
	f := newFixture(t)
	sub, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, models.SubmissionPending, sub.Status)
	assert.Equal(t, f.now, sub.SubmittedAt)
	assert.Equal(t, "ana.ruiz@example.org", sub.AuthorEmail)
	assert.Nil(t, sub.ReviewedAt)
	assert.Empty(t, f.notifier.types(), "Create must not send email")
}

func TestCreateRejectsInvalidPayloadBeforePersisting(t *testing.T) {
	cases := map[string]func(*CreateInput){
		"missing title":   func(in *CreateInput) { in.Title = "" },
		"short abstract":  func(in *CreateInput) { in.Abstract = "too short" },
		"malformed email": func(in *CreateInput) { in.AuthorEmail = "not-an-email" },
		"bad paper key":   func(in *CreateInput) { in.PaperKey = "../../etc/passwd" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			mutate(&in)

			_, err := f.svc.Create(context.Background(), in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
			assert.Empty(t, f.store.subs)
		})
	}
}

func TestCreateWhenClosed(t *testing.T) {
	f := newFixture(t)
	f.settings.s.SubmissionsOpen = false

	_, err := f.svc.Create(context.Background(), validInput())
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Empty(t, f.store.subs)
}

func TestCreateWeeklyCap(t *testing.T) {
	f := newFixture(t)
	f.settings.s.MaxSubmissionsPerWeek = 2
	start := f.now

	_, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	f.now = start.Add(24 * time.Hour)
	_, err = f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	f.now = start.Add(48 * time.Hour)
	_, err = f.svc.Create(context.Background(), validInput())
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindRateLimited, ae.Kind)
	assert.Equal(t, 5*24*time.Hour, ae.RetryAfter)

	f.now = start.Add(CapWindow + time.Minute)
	_, err = f.svc.Create(context.Background(), validInput())
	assert.NoError(t, err)
}

func TestSubmitNotifiesAuthorAndAdmins(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.EmailTypeSubmissionReceived,
		models.EmailTypeSubmissionAlert,
		models.EmailTypeSubmissionAlert,
	}, f.notifier.types())
}

func TestSubmitSucceedsWhenNotificationFails(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("redis down")

	sub, err := f.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.Contains(t, f.store.subs, sub.ID)
}

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, models.SubmissionPending, sub.Status)

	sub, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionUnderReview)
	require.NoError(t, err)
	assert.Nil(t, sub.ReviewedAt)

	sub, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionAccepted)
	require.NoError(t, err)
	require.NotNil(t, sub.ReviewedAt)

	at := f.now.Add(7 * 24 * time.Hour)
	out, err := f.svc.ScheduleEvent(ctx, ScheduleInput{SubmissionID: sub.ID, ScheduledAt: at})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionScheduled, out.Status)
	require.NotNil(t, out.ScheduledAt)
	assert.True(t, at.Equal(*out.ScheduledAt))
	require.NotNil(t, out.Event)
	assert.Equal(t, models.EventScheduled, out.Event.Status)
	assert.True(t, at.Equal(out.Event.ScheduledAt))
	assert.Equal(t, sub.Title, out.Event.Title)
	assert.Equal(t, models.DefaultEventDurationMinutes, out.Event.DurationMinutes)
	assert.Equal(t, *out.EventID, out.Event.ID)

	got, err := f.svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Event)
	assert.Equal(t, out.Event.ID, got.Event.ID)

	types := f.notifier.types()
	assert.Equal(t, models.EmailTypeStatusUpdate, types[len(types)-1])
	assert.Contains(t, f.notifier.msgs[len(f.notifier.msgs)-1].HTML, "Zoom link will be sent")
}

func TestScheduleFromUnderReviewImplicitlyAccepts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionUnderReview)
	require.NoError(t, err)

	out, err := f.svc.ScheduleEvent(ctx, ScheduleInput{SubmissionID: sub.ID, ScheduledAt: f.now.Add(time.Hour), ZoomJoinURL: "https://zoom.us/j/1"})
	require.NoError(t, err)
	assert.NotNil(t, out.ReviewedAt)
	assert.Equal(t, "https://zoom.us/j/1", out.Event.ZoomJoinURL)
}

func TestRejectedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionRejected)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionAccepted)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	_, err = f.svc.ScheduleEvent(ctx, ScheduleInput{SubmissionID: sub.ID, ScheduledAt: f.now})
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	got, err := f.svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionRejected, got.Status)
}

func TestSetStatusSameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)

	got, err := f.svc.SetStatus(ctx, sub.ID, models.SubmissionPending)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionPending, got.Status)
	assert.Empty(t, f.notifier.types())
}

func TestSetStatusRefusesDirectSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionScheduled)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), "PENDING cannot jump to SCHEDULED")

	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionUnderReview)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionScheduled)
	assert.True(t, errors.Is(err, apperr.ErrValidation), "SCHEDULED goes through ScheduleEvent")
}

func TestSetStatusUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SetStatus(context.Background(), uuid.New(), "ARCHIVED")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.SetStatus(context.Background(), uuid.New(), models.SubmissionAccepted)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestConcurrentScheduleCreatesOneEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionUnderReview)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionAccepted)
	require.NoError(t, err)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ScheduleEvent(ctx, ScheduleInput{SubmissionID: sub.ID, ScheduledAt: f.now.Add(time.Hour)})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, conflicts)
	assert.Len(t, f.store.events, 1)
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ScheduleEvent(context.Background(), ScheduleInput{DurationMinutes: -5})
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	require.Equal(t, apperr.KindValidation, ae.Kind)
	var fields []string
	for _, is := range ae.Issues {
		fields = append(fields, is.Field)
	}
	assert.ElementsMatch(t, []string{"submission_id", "scheduled_at", "duration_minutes"}, fields)
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, a.ID, models.SubmissionRejected)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, "rejected")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	_, err = f.svc.List(ctx, "bogus")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

type stubPresigner struct {
	missing bool
}

func (stubPresigner) PresignPaperDownload(_ context.Context, key string) (string, error) {
	return "https://s3.example.com/" + key + "?sig=1", nil
}

func (p stubPresigner) PaperExists(context.Context, string) (bool, error) {
	return !p.missing, nil
}

func TestPaperURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noPaper, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = f.svc.PaperURL(ctx, noPaper.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	in := validInput()
	in.PaperKey = "papers/" + uuid.NewString() + "/draft.pdf"
	withPaper, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.PaperURL(ctx, withPaper.ID)
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))

	f.svc.presigner = stubPresigner{}
	url, err := f.svc.PaperURL(ctx, withPaper.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://s3.example.com/papers/"))
}

func TestCreateRejectsPaperKeyWithoutUpload(t *testing.T) {
	f := newFixture(t)
	f.svc.presigner = stubPresigner{missing: true}

	in := validInput()
	in.PaperKey = storage.PaperKey("draft.pdf")
	_, err := f.svc.Create(context.Background(), in)
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, "paper_key", ae.Issues[0].Field)
}

func TestSetStatusRefusesManualPresented(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionAccepted)
	require.NoError(t, err)
	_, err = f.svc.ScheduleEvent(ctx, ScheduleInput{SubmissionID: sub.ID, ScheduledAt: f.now.Add(time.Hour)})
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, sub.ID, models.SubmissionPresented)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	got, err := f.svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionScheduled, got.Status)
}
