package notify_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"auattend-backend/lib/attendstore"
	"auattend-backend/lib/scrapers/adamas"
	"auattend-backend/lib/testutil"
	"auattend-backend/services/keystore"
	"auattend-backend/services/notify"
)

type recordingSink struct {
	targets  []keystore.NotifyTarget
	messages []notify.Message
}

func (s *recordingSink) Send(ctx context.Context, target keystore.NotifyTarget, msg notify.Message) error {
	s.targets = append(s.targets, target)
	s.messages = append(s.messages, msg)
	return nil
}

func setupNotifier(t *testing.T) (*notify.Notifier, keystore.Service, *recordingSink) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "notify",
		DbSchema: attendstore.Schema() + "\n" + keystore.Schema(),
	})
	t.Cleanup(cleanup)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	cipher, err := keystore.NewCipher(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)

	keys := keystore.NewService(res.DB, cipher)
	sink := &recordingSink{}
	notifier := notify.NewNotifier(attendstore.NewStore(res.DB), keys, sink)
	return notifier, keys, sink
}

func schedule(periods ...adamas.Period) adamas.DaySchedule {
	return adamas.DaySchedule{
		DayName: "Monday",
		DayDate: "02-12-2024",
		Periods: periods,
	}
}

func TestFirstObservationEmitsTransitions(t *testing.T) {
	notifier, keys, sink := setupNotifier(t)
	ctx := context.Background()

	err := keys.SaveFCMToken(ctx, "user1", "fcm-abc")
	require.NoError(t, err)

	transitions, err := notifier.Apply(ctx, "user1", schedule(
		adamas.Period{Index: 1, Subject: "Physics", Mark: adamas.MarkPresent},
		adamas.Period{Index: 2, Subject: "Maths", Mark: adamas.MarkAbsent},
		adamas.Period{Index: 3, Subject: "Chemistry Lab", Mark: adamas.MarkNone},
		adamas.Period{Index: 4},
	))
	require.NoError(t, err)
	require.Equal(t, []notify.Transition{
		{Subject: "Physics", Old: attendstore.StatusUnknown, New: attendstore.StatusPresent},
		{Subject: "Maths", Old: attendstore.StatusUnknown, New: attendstore.StatusAbsent},
	}, transitions)

	require.Len(t, sink.messages, 2)
	require.Equal(t, "Attendance updated: Physics", sink.messages[0].Title)
	require.Equal(t, "fcm-abc", sink.targets[0].FcmToken)
	require.Equal(t, "P", sink.messages[0].Data["status"])
}

func TestReapplyingSameObservationIsIdempotent(t *testing.T) {
	notifier, _, sink := setupNotifier(t)
	ctx := context.Background()

	day := schedule(
		adamas.Period{Index: 1, Subject: "Physics", Mark: adamas.MarkPresent},
	)

	transitions, err := notifier.Apply(ctx, "user1", day)
	require.NoError(t, err)
	require.Len(t, transitions, 1)

	transitions, err = notifier.Apply(ctx, "user1", day)
	require.NoError(t, err)
	require.Empty(t, transitions)
	require.Len(t, sink.messages, 1)
}

func TestStatusFlipEmitsTransition(t *testing.T) {
	notifier, _, _ := setupNotifier(t)
	ctx := context.Background()

	_, err := notifier.Apply(ctx, "user1", schedule(
		adamas.Period{Index: 1, Subject: "Physics", Mark: adamas.MarkPresent},
	))
	require.NoError(t, err)

	transitions, err := notifier.Apply(ctx, "user1", schedule(
		adamas.Period{Index: 1, Subject: "Physics", Mark: adamas.MarkAbsent},
	))
	require.NoError(t, err)
	require.Equal(t, []notify.Transition{
		{Subject: "Physics", Old: attendstore.StatusPresent, New: attendstore.StatusAbsent},
	}, transitions)
}

func TestLastMarkedPeriodWinsPerSubject(t *testing.T) {
	notifier, _, _ := setupNotifier(t)
	ctx := context.Background()

	transitions, err := notifier.Apply(ctx, "user1", schedule(
		adamas.Period{Index: 1, Subject: "Physics", Mark: adamas.MarkAbsent},
		adamas.Period{Index: 2, Subject: "Physics", Mark: adamas.MarkPresent},
	))
	require.NoError(t, err)
	require.Equal(t, []notify.Transition{
		{Subject: "Physics", Old: attendstore.StatusUnknown, New: attendstore.StatusPresent},
	}, transitions)
}

func TestUsersAreIsolated(t *testing.T) {
	notifier, _, _ := setupNotifier(t)
	ctx := context.Background()

	day := schedule(
		adamas.Period{Index: 1, Subject: "Physics", Mark: adamas.MarkPresent},
	)

	_, err := notifier.Apply(ctx, "user1", day)
	require.NoError(t, err)

	transitions, err := notifier.Apply(ctx, "user2", day)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
}
