package attendstore

import (
	"context"
	"database/sql"

	"auattend-backend/lib/attendstore/db"
	"auattend-backend/lib/scrapers/adamas"
	"auattend-backend/lib/timezone"
)

// Status is the last-known attendance state for one
// (user, day, subject) key.
type Status string

const (
	// no snapshot recorded yet
	StatusUnknown Status = ""
	StatusPresent Status = "P"
	StatusAbsent  Status = "A"
)

func StatusFromMark(mark adamas.Mark) Status {
	switch mark {
	case adamas.MarkPresent:
		return StatusPresent
	case adamas.MarkAbsent:
		return StatusAbsent
	}
	return StatusUnknown
}

// Store is the durable "last seen" attendance state, keyed by
// (user, day, subject). Only the latest status per key is retained.
type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
	}
}

// Schema is the sql schema the store's database must be opened with.
func Schema() string {
	return db.Schema
}

// Get returns StatusUnknown when no snapshot exists for the key.
func (s Store) Get(ctx context.Context, user, day, subject string) (Status, error) {
	status, err := s.qry.GetStatus(ctx, db.GetStatusParams{
		User:    user,
		Day:     day,
		Subject: subject,
	})
	if err == sql.ErrNoRows {
		return StatusUnknown, nil
	}
	if err != nil {
		return StatusUnknown, err
	}
	return Status(status), nil
}

// Set records the latest status for the key, overwriting any previous
// value. Last write wins.
func (s Store) Set(ctx context.Context, user, day, subject string, status Status) error {
	return s.qry.UpsertStatus(ctx, db.UpsertStatusParams{
		User:      user,
		Day:       day,
		Subject:   subject,
		Status:    string(status),
		UpdatedAt: timezone.Now().Unix(),
	})
}

// Day returns every snapshot recorded for the user on the given day.
func (s Store) Day(ctx context.Context, user, day string) (map[string]Status, error) {
	rows, err := s.qry.GetDayStatuses(ctx, db.GetDayStatusesParams{
		User: user,
		Day:  day,
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]Status, len(rows))
	for _, r := range rows {
		out[r.Subject] = Status(r.Status)
	}
	return out, nil
}

// Forget drops every snapshot belonging to the user, part of clearing
// their registration.
func (s Store) Forget(ctx context.Context, user string) error {
	return s.qry.DeleteUser(ctx, user)
}
