package keystore

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel"

	"auattend-backend/lib/timezone"
	"auattend-backend/services/keystore/db"
)

var tracer = otel.Tracer("services/keystore")

// ErrNoCredentials is returned when a user has no saved portal login.
var ErrNoCredentials = errors.New("no credentials saved for user")

// Credentials is a decrypted portal login.
type Credentials struct {
	RegistrationNo string `json:"registration_no"`
	Password       string `json:"password"`
}

// PollState tracks the scheduler bookkeeping for one user.
type PollState struct {
	FailureCount int64
	NextPollAt   int64
	LastPollAt   int64
	LastNotifyAt int64
}

// NotifyTarget is where change notifications for a user go.
type NotifyTarget struct {
	FcmToken    string
	NotifyEmail string
}

// Service stores encrypted portal credentials, notification targets
// and poll scheduling state keyed by user id.
type Service struct {
	qry    *db.Queries
	cipher *Cipher
}

func NewService(database *sql.DB, cipher *Cipher) Service {
	return Service{
		qry:    db.New(database),
		cipher: cipher,
	}
}

func (s Service) SaveCredentials(ctx context.Context, userId string, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "keystore:SaveCredentials")
	defer span.End()

	sealed, err := s.cipher.Seal(creds.Password)
	if err != nil {
		return err
	}
	return s.qry.UpsertCredentials(ctx, db.UpsertCredentialsParams{
		ID:             userId,
		RegistrationNo: creds.RegistrationNo,
		Password:       sealed,
		CreatedAt:      timezone.Now().Unix(),
	})
}

func (s Service) Credentials(ctx context.Context, userId string) (Credentials, error) {
	ctx, span := tracer.Start(ctx, "keystore:Credentials")
	defer span.End()

	user, err := s.qry.GetUser(ctx, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, err
	}
	if user.RegistrationNo == "" {
		return Credentials{}, ErrNoCredentials
	}
	password, err := s.cipher.Open(user.Password)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		RegistrationNo: user.RegistrationNo,
		Password:       password,
	}, nil
}

func (s Service) SaveFCMToken(ctx context.Context, userId, token string) error {
	ctx, span := tracer.Start(ctx, "keystore:SaveFCMToken")
	defer span.End()

	return s.qry.UpsertFcmToken(ctx, db.UpsertFcmTokenParams{
		ID:        userId,
		FcmToken:  token,
		CreatedAt: timezone.Now().Unix(),
	})
}

func (s Service) SaveNotifyEmail(ctx context.Context, userId, email string) error {
	ctx, span := tracer.Start(ctx, "keystore:SaveNotifyEmail")
	defer span.End()

	return s.qry.UpsertNotifyEmail(ctx, db.UpsertNotifyEmailParams{
		ID:          userId,
		NotifyEmail: email,
		CreatedAt:   timezone.Now().Unix(),
	})
}

func (s Service) NotifyTarget(ctx context.Context, userId string) (NotifyTarget, error) {
	ctx, span := tracer.Start(ctx, "keystore:NotifyTarget")
	defer span.End()

	user, err := s.qry.GetUser(ctx, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return NotifyTarget{}, nil
	}
	if err != nil {
		return NotifyTarget{}, err
	}
	return NotifyTarget{
		FcmToken:    user.FcmToken,
		NotifyEmail: user.NotifyEmail,
	}, nil
}

func (s Service) PollState(ctx context.Context, userId string) (PollState, error) {
	ctx, span := tracer.Start(ctx, "keystore:PollState")
	defer span.End()

	user, err := s.qry.GetUser(ctx, userId)
	if err != nil {
		return PollState{}, err
	}
	return PollState{
		FailureCount: user.FailureCount,
		NextPollAt:   user.NextPollAt,
		LastPollAt:   user.LastPollAt,
		LastNotifyAt: user.LastNotifyAt,
	}, nil
}

func (s Service) SavePollState(ctx context.Context, userId string, state PollState) error {
	ctx, span := tracer.Start(ctx, "keystore:SavePollState")
	defer span.End()

	return s.qry.UpdatePollState(ctx, db.UpdatePollStateParams{
		FailureCount: state.FailureCount,
		NextPollAt:   state.NextPollAt,
		LastPollAt:   state.LastPollAt,
		LastNotifyAt: state.LastNotifyAt,
		ID:           userId,
	})
}

// ListUsers returns the ids of every user with saved credentials.
func (s Service) ListUsers(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "keystore:ListUsers")
	defer span.End()

	return s.qry.ListUserIds(ctx)
}

// Clear removes a user's credentials and notification targets.
func (s Service) Clear(ctx context.Context, userId string) error {
	ctx, span := tracer.Start(ctx, "keystore:Clear")
	defer span.End()

	return s.qry.DeleteUser(ctx, userId)
}

// Schema is the sql schema the service's database must be opened with.
func Schema() string {
	return db.Schema
}
