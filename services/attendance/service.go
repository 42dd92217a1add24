package attendance

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"auattend-backend/lib/attendstore"
	"auattend-backend/lib/scrapers/adamas"
	"auattend-backend/lib/timezone"
	"auattend-backend/services/keystore"
	"auattend-backend/services/notify"
)

var tracer = otel.Tracer("services/attendance")

type Config struct {
	// base url of the student portal, e.g. "https://students.adamasuniversity.ac.in"
	PortalBaseUrl string `json:"portal_base_url"`
	// per-request portal timeout in seconds, 0 for the client default
	PortalTimeoutSeconds int `json:"portal_timeout_seconds"`
}

// Service runs the login, fetch, extract pipeline against the portal
// and feeds scraped schedules through the change notifier.
type Service struct {
	config   Config
	keys     keystore.Service
	store    attendstore.Store
	notifier *notify.Notifier
}

func NewService(config Config, keys keystore.Service, store attendstore.Store, notifier *notify.Notifier) Service {
	return Service{
		config:   config,
		keys:     keys,
		store:    store,
		notifier: notifier,
	}
}

// login builds a fresh portal session. Sessions are never reused
// across calls since the portal expires them aggressively.
func (s Service) login(ctx context.Context, creds keystore.Credentials) (*adamas.Client, error) {
	client, err := adamas.NewClient(adamas.ClientOptions{
		BaseUrl: s.config.PortalBaseUrl,
		Timeout: time.Duration(s.config.PortalTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx, creds.RegistrationNo, creds.Password); err != nil {
		return nil, err
	}
	return client, nil
}

// GetAttendance logs in with the given credentials and returns the
// cumulative per-subject attendance table.
func (s Service) GetAttendance(ctx context.Context, creds keystore.Credentials) ([]adamas.AttendanceRecord, error) {
	ctx, span := tracer.Start(ctx, "attendance:GetAttendance")
	defer span.End()

	client, err := s.login(ctx, creds)
	if err != nil {
		return nil, err
	}
	page, err := client.FetchAttendancePage(ctx)
	if err != nil {
		return nil, err
	}
	return adamas.ExtractAttendance(page)
}

// GetRoutine logs in and returns the period-by-period schedule for the
// given date. An empty date means today.
func (s Service) GetRoutine(ctx context.Context, creds keystore.Credentials, date string) (adamas.DaySchedule, error) {
	ctx, span := tracer.Start(ctx, "attendance:GetRoutine")
	defer span.End()

	if date == "" {
		date = timezone.Today()
	}
	date = adamas.NormalizeDate(date)
	span.SetAttributes(attribute.String("date", date))

	client, err := s.login(ctx, creds)
	if err != nil {
		return adamas.DaySchedule{}, err
	}
	page, err := client.FetchRoutinePage(ctx, date)
	if err != nil {
		return adamas.DaySchedule{}, err
	}
	return adamas.ExtractSchedule(page, date)
}

// RegisterUser validates the credentials against the portal before
// persisting them, so a typo'd password is rejected immediately
// instead of failing on every future poll.
func (s Service) RegisterUser(ctx context.Context, userId string, creds keystore.Credentials) error {
	ctx, span := tracer.Start(ctx, "attendance:RegisterUser")
	defer span.End()

	if _, err := s.login(ctx, creds); err != nil {
		return err
	}
	return s.keys.SaveCredentials(ctx, userId, creds)
}

// ClearUser drops the user's credentials and attendance snapshots.
func (s Service) ClearUser(ctx context.Context, userId string) error {
	ctx, span := tracer.Start(ctx, "attendance:ClearUser")
	defer span.End()

	if err := s.keys.Clear(ctx, userId); err != nil {
		return err
	}
	return s.store.Forget(ctx, userId)
}

// PollUser scrapes today's schedule with the user's saved credentials
// and applies it to the change detector. A day with no routine table
// yields no transitions and no error.
func (s Service) PollUser(ctx context.Context, userId string) ([]notify.Transition, error) {
	ctx, span := tracer.Start(ctx, "attendance:PollUser")
	defer span.End()
	span.SetAttributes(attribute.String("user", userId))

	creds, err := s.keys.Credentials(ctx, userId)
	if err != nil {
		return nil, err
	}
	schedule, err := s.GetRoutine(ctx, creds, "")
	var noTable *adamas.NoTableError
	var noDate *adamas.DateNotFoundError
	if errors.As(err, &noTable) || errors.As(err, &noDate) {
		// holiday or a week the portal has not published yet
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.notifier.Apply(ctx, userId, schedule)
}
