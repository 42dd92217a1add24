package db

import (
	"context"
)

const getStatus = `
SELECT status FROM attendance_snapshot
WHERE user = ? AND day = ? AND subject = ?
`

type GetStatusParams struct {
	User    string
	Day     string
	Subject string
}

func (q *Queries) GetStatus(ctx context.Context, arg GetStatusParams) (string, error) {
	row := q.db.QueryRowContext(ctx, getStatus, arg.User, arg.Day, arg.Subject)
	var status string
	err := row.Scan(&status)
	return status, err
}

const upsertStatus = `
INSERT INTO attendance_snapshot (user, day, subject, status, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user, day, subject) DO UPDATE SET
    status = excluded.status,
    updated_at = excluded.updated_at
`

type UpsertStatusParams struct {
	User      string
	Day       string
	Subject   string
	Status    string
	UpdatedAt int64
}

func (q *Queries) UpsertStatus(ctx context.Context, arg UpsertStatusParams) error {
	_, err := q.db.ExecContext(ctx, upsertStatus,
		arg.User, arg.Day, arg.Subject, arg.Status, arg.UpdatedAt)
	return err
}

const getDayStatuses = `
SELECT subject, status FROM attendance_snapshot
WHERE user = ? AND day = ?
ORDER BY subject
`

type GetDayStatusesParams struct {
	User string
	Day  string
}

type GetDayStatusesRow struct {
	Subject string
	Status  string
}

func (q *Queries) GetDayStatuses(ctx context.Context, arg GetDayStatusesParams) ([]GetDayStatusesRow, error) {
	rows, err := q.db.QueryContext(ctx, getDayStatuses, arg.User, arg.Day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GetDayStatusesRow
	for rows.Next() {
		var r GetDayStatusesRow
		if err := rows.Scan(&r.Subject, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const deleteUser = `
DELETE FROM attendance_snapshot WHERE user = ?
`

func (q *Queries) DeleteUser(ctx context.Context, user string) error {
	_, err := q.db.ExecContext(ctx, deleteUser, user)
	return err
}
