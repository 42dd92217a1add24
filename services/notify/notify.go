package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"auattend-backend/lib/attendstore"
	"auattend-backend/lib/scrapers/adamas"
	"auattend-backend/services/keystore"
)

var tracer = otel.Tracer("services/notify")

// Transition is one observed attendance state change for a subject.
type Transition struct {
	Subject string             `json:"subject"`
	Old     attendstore.Status `json:"old"`
	New     attendstore.Status `json:"new"`
}

// Notifier diffs freshly scraped schedules against the stored
// snapshots and pushes a message per changed subject. Applying the
// same observation twice produces no transitions.
type Notifier struct {
	store attendstore.Store
	keys  keystore.Service
	sinks []Sink

	// notification targets change rarely, so reads go through a
	// short-lived cache instead of hitting the db once per transition
	targets *expirable.LRU[string, keystore.NotifyTarget]
}

func NewNotifier(store attendstore.Store, keys keystore.Service, sinks ...Sink) *Notifier {
	return &Notifier{
		store:   store,
		keys:    keys,
		sinks:   sinks,
		targets: expirable.NewLRU[string, keystore.NotifyTarget](256, nil, time.Minute*5),
	}
}

func (n *Notifier) target(ctx context.Context, user string) (keystore.NotifyTarget, error) {
	if target, ok := n.targets.Get(user); ok {
		return target, nil
	}
	target, err := n.keys.NotifyTarget(ctx, user)
	if err != nil {
		return keystore.NotifyTarget{}, err
	}
	n.targets.Add(user, target)
	return target, nil
}

// InvalidateTarget drops the cached notification target for a user,
// called after their token or email changes.
func (n *Notifier) InvalidateTarget(user string) {
	n.targets.Remove(user)
}

// Apply records the schedule's marks for the user and returns the
// transitions relative to the previous snapshot. When a subject
// appears in several periods of the day, the last marked period wins.
// Sink failures are logged but never fail the apply; the snapshot is
// only advanced for subjects whose transition was recorded.
func (n *Notifier) Apply(ctx context.Context, user string, schedule adamas.DaySchedule) ([]Transition, error) {
	ctx, span := tracer.Start(ctx, "notify:Apply")
	defer span.End()
	span.SetAttributes(attribute.String("day", schedule.DayDate))

	latest := map[string]attendstore.Status{}
	var order []string
	for _, period := range schedule.Periods {
		if period.Subject == "" || period.Mark == adamas.MarkNone {
			continue
		}
		if _, seen := latest[period.Subject]; !seen {
			order = append(order, period.Subject)
		}
		latest[period.Subject] = attendstore.StatusFromMark(period.Mark)
	}

	var transitions []Transition
	for _, subject := range order {
		next := latest[subject]
		prev, err := n.store.Get(ctx, user, schedule.DayDate, subject)
		if err != nil {
			return transitions, err
		}
		if prev == next {
			continue
		}
		if err := n.store.Set(ctx, user, schedule.DayDate, subject, next); err != nil {
			return transitions, err
		}
		transitions = append(transitions, Transition{
			Subject: subject,
			Old:     prev,
			New:     next,
		})
	}

	if len(transitions) > 0 {
		n.deliver(ctx, user, schedule.DayDate, transitions)
	}
	return transitions, nil
}

func statusLabel(status attendstore.Status) string {
	switch status {
	case attendstore.StatusPresent:
		return "Present"
	case attendstore.StatusAbsent:
		return "Absent"
	}
	return "Not marked"
}

func (n *Notifier) deliver(ctx context.Context, user, day string, transitions []Transition) {
	target, err := n.target(ctx, user)
	if err != nil {
		slog.Error("failed to resolve notification target",
			"user", user, "err", err)
		return
	}

	for _, tr := range transitions {
		msg := Message{
			Title: fmt.Sprintf("Attendance updated: %s", tr.Subject),
			Body:  fmt.Sprintf("%s is now marked %s on %s.", tr.Subject, statusLabel(tr.New), day),
			Data: map[string]string{
				"subject": tr.Subject,
				"day":     day,
				"status":  string(tr.New),
			},
		}
		for _, sink := range n.sinks {
			if err := sink.Send(ctx, target, msg); err != nil {
				slog.Error("failed to deliver notification",
					"user", user, "subject", tr.Subject, "err", err)
			}
		}
	}
}
