package poller

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auattend-backend/lib/attendstore"
	"auattend-backend/lib/testutil"
	"auattend-backend/lib/timezone"
	"auattend-backend/services/attendance"
	"auattend-backend/services/keystore"
	"auattend-backend/services/notify"
)

const testConfigBase = 900

func testPoller(t *testing.T, portalUrl string) (*Poller, keystore.Service) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "poller",
		DbSchema: attendstore.Schema() + "\n" + keystore.Schema(),
	})
	t.Cleanup(cleanup)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	cipher, err := keystore.NewCipher(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)

	keys := keystore.NewService(res.DB, cipher)
	store := attendstore.NewStore(res.DB)
	service := attendance.NewService(attendance.Config{
		PortalBaseUrl:        portalUrl,
		PortalTimeoutSeconds: 5,
	}, keys, store, notify.NewNotifier(store, keys))

	p := New(Config{
		BaseIntervalSeconds: testConfigBase,
		MaxIntervalSeconds:  21600,
		JitterPercent:       20,
	}, service, keys)
	return p, keys
}

// minimal portal: login handshake plus an empty routine for today
func okPortal(t *testing.T) *httptest.Server {
	login := `<html><body><form><input name="_token" value="tok"></form></body></html>`
	routine := fmt.Sprintf(`<html><body><table><tbody>
<tr><td class="week-day">Today %s</td>
<td class="routine-content"><span class="class-subject">Physics</span>
<span class="attendance_status_present"></span></td></tr>
</tbody></table></body></html>`, timezone.Today())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /student/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(login))
	})
	mux.HandleFunc("POST /student/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/student/dashboard")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("GET /student/routine", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(routine))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p, _ := testPoller(t, "http://localhost:1")

	base := time.Duration(testConfigBase) * time.Second
	ceiling := time.Duration(p.config.MaxIntervalSeconds) * time.Second

	prev := time.Duration(0)
	for failures := int64(0); failures < 10; failures++ {
		backoff := p.backoffAfter(failures)
		require.GreaterOrEqual(t, backoff, base, "failures=%d", failures)
		require.LessOrEqual(t, backoff, ceiling, "failures=%d", failures)
		require.GreaterOrEqual(t, backoff, prev, "backoff must not shrink")
		prev = backoff
	}
	require.Equal(t, 2*base, p.backoffAfter(0))
	require.Equal(t, 4*base, p.backoffAfter(1))
	require.Equal(t, ceiling, p.backoffAfter(10))
}

func TestJitterStaysWithinBounds(t *testing.T) {
	p, _ := testPoller(t, "http://localhost:1")

	d := time.Duration(testConfigBase) * time.Second
	bound := d / 100 * time.Duration(p.config.JitterPercent)
	for i := 0; i < 100; i++ {
		skewed := p.jitter(d)
		require.GreaterOrEqual(t, skewed, d-bound)
		require.LessOrEqual(t, skewed, d+bound)
	}
}

func TestFreshUserIsNotPolledImmediately(t *testing.T) {
	p, keys := testPoller(t, "http://localhost:1")
	ctx := context.Background()

	err := keys.SaveCredentials(ctx, "user1", keystore.Credentials{
		RegistrationNo: "AU123",
		Password:       "hunter2",
	})
	require.NoError(t, err)

	now := timezone.Now()
	p.now = func() time.Time { return now }

	// first tick only schedules, it must not reach the portal (the url
	// points at a closed port, a poll attempt would record a failure)
	p.tick(ctx)

	state, err := keys.PollState(ctx, "user1")
	require.NoError(t, err)
	require.Zero(t, state.FailureCount)
	require.Zero(t, state.LastPollAt)

	base := int64(testConfigBase)
	bound := base / 100 * int64(p.config.JitterPercent)
	require.GreaterOrEqual(t, state.NextPollAt, now.Unix()+base-bound)
	require.LessOrEqual(t, state.NextPollAt, now.Unix()+base+bound)
}

func TestClaimIsExclusive(t *testing.T) {
	p, _ := testPoller(t, "http://localhost:1")

	require.True(t, p.claim("user1"))
	require.False(t, p.claim("user1"))
	require.True(t, p.claim("user2"))

	p.release("user1")
	require.True(t, p.claim("user1"))
}

func TestFailedPollBacksOff(t *testing.T) {
	p, keys := testPoller(t, "http://localhost:1")
	ctx := context.Background()

	err := keys.SaveCredentials(ctx, "user1", keystore.Credentials{
		RegistrationNo: "AU123",
		Password:       "hunter2",
	})
	require.NoError(t, err)

	now := timezone.Now()
	p.now = func() time.Time { return now }

	p.pollOne(ctx, "user1", keystore.PollState{NextPollAt: now.Unix()})

	state, err := keys.PollState(ctx, "user1")
	require.NoError(t, err)
	require.EqualValues(t, 1, state.FailureCount)
	require.Equal(t, now.Unix(), state.LastPollAt)
	require.Greater(t, state.NextPollAt, now.Unix())

	// next failure schedules further out than the first
	p.pollOne(ctx, "user1", state)
	next, err := keys.PollState(ctx, "user1")
	require.NoError(t, err)
	require.EqualValues(t, 2, next.FailureCount)
}

func TestSuccessfulPollResetsFailures(t *testing.T) {
	portal := okPortal(t)
	p, keys := testPoller(t, portal.URL)
	ctx := context.Background()

	err := keys.SaveCredentials(ctx, "user1", keystore.Credentials{
		RegistrationNo: "AU123",
		Password:       "hunter2",
	})
	require.NoError(t, err)

	now := timezone.Now()
	p.now = func() time.Time { return now }

	p.pollOne(ctx, "user1", keystore.PollState{
		FailureCount: 5,
		NextPollAt:   now.Unix(),
	})

	state, err := keys.PollState(ctx, "user1")
	require.NoError(t, err)
	require.Zero(t, state.FailureCount)
	require.Equal(t, now.Unix(), state.LastPollAt)
	require.Equal(t, now.Unix(), state.LastNotifyAt)
	require.Greater(t, state.NextPollAt, now.Unix())
}
