package db

import "context"

type User struct {
	ID             string
	RegistrationNo string
	Password       string
	FcmToken       string
	NotifyEmail    string
	FailureCount   int64
	NextPollAt     int64
	LastPollAt     int64
	LastNotifyAt   int64
	CreatedAt      int64
}

const getUser = `
SELECT id, registration_no, password, fcm_token, notify_email,
       failure_count, next_poll_at, last_poll_at, last_notify_at, created_at
FROM user WHERE id = ?
`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var u User
	err := row.Scan(
		&u.ID, &u.RegistrationNo, &u.Password, &u.FcmToken, &u.NotifyEmail,
		&u.FailureCount, &u.NextPollAt, &u.LastPollAt, &u.LastNotifyAt, &u.CreatedAt,
	)
	return u, err
}

const listUserIds = `
SELECT id FROM user WHERE registration_no != '' ORDER BY id
`

func (q *Queries) ListUserIds(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUserIds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const upsertCredentials = `
INSERT INTO user (id, registration_no, password, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    registration_no = excluded.registration_no,
    password = excluded.password
`

type UpsertCredentialsParams struct {
	ID             string
	RegistrationNo string
	Password       string
	CreatedAt      int64
}

func (q *Queries) UpsertCredentials(ctx context.Context, arg UpsertCredentialsParams) error {
	_, err := q.db.ExecContext(ctx, upsertCredentials,
		arg.ID, arg.RegistrationNo, arg.Password, arg.CreatedAt)
	return err
}

const upsertFcmToken = `
INSERT INTO user (id, fcm_token, created_at)
VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET fcm_token = excluded.fcm_token
`

type UpsertFcmTokenParams struct {
	ID        string
	FcmToken  string
	CreatedAt int64
}

func (q *Queries) UpsertFcmToken(ctx context.Context, arg UpsertFcmTokenParams) error {
	_, err := q.db.ExecContext(ctx, upsertFcmToken, arg.ID, arg.FcmToken, arg.CreatedAt)
	return err
}

const upsertNotifyEmail = `
INSERT INTO user (id, notify_email, created_at)
VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET notify_email = excluded.notify_email
`

type UpsertNotifyEmailParams struct {
	ID          string
	NotifyEmail string
	CreatedAt   int64
}

func (q *Queries) UpsertNotifyEmail(ctx context.Context, arg UpsertNotifyEmailParams) error {
	_, err := q.db.ExecContext(ctx, upsertNotifyEmail, arg.ID, arg.NotifyEmail, arg.CreatedAt)
	return err
}

const updatePollState = `
UPDATE user SET
    failure_count = ?,
    next_poll_at = ?,
    last_poll_at = ?,
    last_notify_at = ?
WHERE id = ?
`

type UpdatePollStateParams struct {
	FailureCount int64
	NextPollAt   int64
	LastPollAt   int64
	LastNotifyAt int64
	ID           string
}

func (q *Queries) UpdatePollState(ctx context.Context, arg UpdatePollStateParams) error {
	_, err := q.db.ExecContext(ctx, updatePollState,
		arg.FailureCount, arg.NextPollAt, arg.LastPollAt, arg.LastNotifyAt, arg.ID)
	return err
}

const deleteUser = `
DELETE FROM user WHERE id = ?
`

func (q *Queries) DeleteUser(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteUser, id)
	return err
}
