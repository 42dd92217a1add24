package attendance_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"auattend-backend/lib/attendstore"
	"auattend-backend/lib/scrapers/adamas"
	"auattend-backend/lib/testutil"
	"auattend-backend/lib/timezone"
	"auattend-backend/services/attendance"
	"auattend-backend/services/keystore"
	"auattend-backend/services/notify"
)

const loginPage = `<html><body>
<form method="POST" action="/student/login">
<input type="hidden" name="_token" value="fixture-csrf-token">
</form>
</body></html>`

const attendancePage = `<html><body>
<table id="myTable"><tbody>
<tr><td>Engineering Physics</td><td>40</td><td>36</td><td>4</td><td>90.00</td></tr>
<tr><td>Mathematics-I</td><td>38</td><td>30</td><td>8</td><td>78.95</td></tr>
</tbody></table>
</body></html>`

// portalState lets a test flip today's mark between polls.
type portalState struct {
	mu          sync.Mutex
	physicsMark string
}

func (p *portalState) setMark(class string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.physicsMark = class
}

func (p *portalState) routinePage() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark := ""
	if p.physicsMark != "" {
		mark = fmt.Sprintf(`<span class="%s"></span>`, p.physicsMark)
	}
	return fmt.Sprintf(`<html><body>
<table class="routine-table"><tbody>
<tr>
  <td class="week-day">Monday
    %s</td>
  <td class="routine-content">
    <span class="class-subject">Engineering Physics</span>
    <span class="class-teacher">Dr. A. Sen</span>
    <span class="bulding-room">Block B / 204</span>
    %s
  </td>
</tr>
</tbody></table>
</body></html>`, timezone.Today(), mark)
}

func fakePortal(t *testing.T, state *portalState) *httptest.Server {
	requireSession := func(w http.ResponseWriter, r *http.Request) bool {
		cookie, err := r.Cookie("portal_session")
		if err != nil || cookie.Value != "authenticated" {
			w.Header().Set("Location", "/student/login")
			w.WriteHeader(http.StatusFound)
			return false
		}
		return true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /student/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loginPage))
	})
	mux.HandleFunc("POST /student/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("_token") != "fixture-csrf-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.PostForm.Get("registration_no") != "AU123" || r.PostForm.Get("password") != "hunter2" {
			w.Write([]byte(loginPage))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: "authenticated"})
		w.Header().Set("Location", "/student/dashboard")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("GET /student/attendance", func(w http.ResponseWriter, r *http.Request) {
		if !requireSession(w, r) {
			return
		}
		w.Write([]byte(attendancePage))
	})
	mux.HandleFunc("GET /student/routine", func(w http.ResponseWriter, r *http.Request) {
		if !requireSession(w, r) {
			return
		}
		w.Write([]byte(state.routinePage()))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setupService(t *testing.T) (attendance.Service, keystore.Service, *portalState) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "attendance",
		DbSchema: attendstore.Schema() + "\n" + keystore.Schema(),
	})
	t.Cleanup(cleanup)

	state := &portalState{physicsMark: "attendance_status_present"}
	portal := fakePortal(t, state)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	cipher, err := keystore.NewCipher(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)

	keys := keystore.NewService(res.DB, cipher)
	store := attendstore.NewStore(res.DB)
	notifier := notify.NewNotifier(store, keys)
	service := attendance.NewService(attendance.Config{
		PortalBaseUrl: portal.URL,
	}, keys, store, notifier)

	return service, keys, state
}

var validCreds = keystore.Credentials{
	RegistrationNo: "AU123",
	Password:       "hunter2",
}

func TestGetAttendance(t *testing.T) {
	service, _, _ := setupService(t)

	records, err := service.GetAttendance(context.Background(), validCreds)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Engineering Physics", records[0].Subject)
	require.Equal(t, 40, records[0].ClassesHeld)
}

func TestGetAttendanceBadCredentials(t *testing.T) {
	service, _, _ := setupService(t)

	_, err := service.GetAttendance(context.Background(), keystore.Credentials{
		RegistrationNo: "AU123",
		Password:       "wrong",
	})
	require.ErrorIs(t, err, adamas.ErrInvalidCredentials)
}

func TestGetRoutineDefaultsToToday(t *testing.T) {
	service, _, _ := setupService(t)

	schedule, err := service.GetRoutine(context.Background(), validCreds, "")
	require.NoError(t, err)
	require.Equal(t, timezone.Today(), schedule.DayDate)
	require.Len(t, schedule.Periods, adamas.PeriodsPerDay)
	require.Equal(t, "Engineering Physics", schedule.Periods[0].Subject)
	require.Equal(t, adamas.MarkPresent, schedule.Periods[0].Mark)
}

func TestGetRoutineUnknownDate(t *testing.T) {
	service, _, _ := setupService(t)

	_, err := service.GetRoutine(context.Background(), validCreds, "01-01-1999")
	var notFound *adamas.DateNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "01-01-1999", notFound.Requested)
	require.NotEmpty(t, notFound.Available)
}

func TestRegisterUserValidatesCredentials(t *testing.T) {
	service, keys, _ := setupService(t)
	ctx := context.Background()

	err := service.RegisterUser(ctx, "user1", keystore.Credentials{
		RegistrationNo: "AU123",
		Password:       "wrong",
	})
	require.ErrorIs(t, err, adamas.ErrInvalidCredentials)

	_, err = keys.Credentials(ctx, "user1")
	require.ErrorIs(t, err, keystore.ErrNoCredentials)

	err = service.RegisterUser(ctx, "user1", validCreds)
	require.NoError(t, err)

	creds, err := keys.Credentials(ctx, "user1")
	require.NoError(t, err)
	require.Equal(t, validCreds, creds)
}

func TestPollUserDetectsChangesOnce(t *testing.T) {
	service, _, state := setupService(t)
	ctx := context.Background()

	err := service.RegisterUser(ctx, "user1", validCreds)
	require.NoError(t, err)

	transitions, err := service.PollUser(ctx, "user1")
	require.NoError(t, err)
	require.Equal(t, []notify.Transition{{
		Subject: "Engineering Physics",
		Old:     attendstore.StatusUnknown,
		New:     attendstore.StatusPresent,
	}}, transitions)

	// same portal state, no new transitions
	transitions, err = service.PollUser(ctx, "user1")
	require.NoError(t, err)
	require.Empty(t, transitions)

	// teacher corrects the mark
	state.setMark("attendance_status_absent")
	transitions, err = service.PollUser(ctx, "user1")
	require.NoError(t, err)
	require.Equal(t, []notify.Transition{{
		Subject: "Engineering Physics",
		Old:     attendstore.StatusPresent,
		New:     attendstore.StatusAbsent,
	}}, transitions)
}

func TestPollUserToleratesUnmarkedDay(t *testing.T) {
	service, _, state := setupService(t)
	ctx := context.Background()

	err := service.RegisterUser(ctx, "user1", validCreds)
	require.NoError(t, err)

	state.setMark("")
	transitions, err := service.PollUser(ctx, "user1")
	require.NoError(t, err)
	require.Empty(t, transitions)
}

func TestClearUserForgetsSnapshots(t *testing.T) {
	service, keys, _ := setupService(t)
	ctx := context.Background()

	err := service.RegisterUser(ctx, "user1", validCreds)
	require.NoError(t, err)
	_, err = service.PollUser(ctx, "user1")
	require.NoError(t, err)

	err = service.ClearUser(ctx, "user1")
	require.NoError(t, err)

	_, err = keys.Credentials(ctx, "user1")
	require.ErrorIs(t, err, keystore.ErrNoCredentials)
	_, err = service.PollUser(ctx, "user1")
	require.ErrorIs(t, err, keystore.ErrNoCredentials)

	// re-registering starts from a clean snapshot, so the same mark
	// notifies again
	err = service.RegisterUser(ctx, "user1", validCreds)
	require.NoError(t, err)
	transitions, err := service.PollUser(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, transitions, 1)
}
