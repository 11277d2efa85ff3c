package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/place-reservation/internal/logger"
	"github.com/iliyamo/place-reservation/internal/observability"
	"github.com/iliyamo/place-reservation/internal/queue"
	"github.com/iliyamo/place-reservation/internal/repository"
)

// Publisher hands a notification to the transport.  *queue.Publisher
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev queue.NotificationEvent) error
}

// Notifier turns committed lifecycle events into notification messages.
// It is fire-and-forget: Notify returns at once, recipients are resolved
// and the messages published in the background, and failures are only
// logged and counted.
type Notifier struct {
	users   repository.UserStore
	pub     Publisher
	metrics *observability.Metrics
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewNotifier builds a notifier reading recipients from users.
func NewNotifier(users repository.UserStore, pub Publisher, metrics *observability.Metrics) *Notifier {
	return &Notifier{users: users, pub: pub, metrics: metrics, timeout: 5 * time.Second, now: time.Now}
}

// Notify schedules delivery of n.  A nil Notifier drops everything.
func (n *Notifier) Notify(ctx context.Context, note Notification) {
	if n == nil || n.pub == nil {
		return
	}
	// keep request-scoped values for logging but not the caller's deadline
	base := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		dctx, cancel := context.WithTimeout(base, n.timeout)
		defer cancel()
		n.deliver(dctx, note)
	}()
}

// Wait blocks until every scheduled notification has been handled.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, note Notification) {
	r := note.Reservation
	log := logger.WithContext(ctx).With("reservation", r.Code, "notification", note.Title)

	recipients, err := n.staffTokens(ctx, r.Company, r.House)
	if err != nil {
		log.Warn("notification recipients lookup failed", "error", err)
		n.metrics.Notification("publish", "lookup_failed")
	}
	data := map[string]string{"phone": r.Occupant.Phone, "reservation": r.Code}
	if len(recipients) > 0 {
		n.publish(ctx, log, queue.NotificationEvent{
			Recipients:  recipients,
			Title:       r.Company + " • " + r.House,
			Subtitle:    note.Title,
			Body:        note.Message,
			Data:        data,
			Reservation: r.Code,
			Place:       r.Place,
			CreatedAt:   n.now().UTC(),
		})
	}

	if note.ToOccupant && r.Occupant.TokenValue != "" {
		n.publish(ctx, log, queue.NotificationEvent{
			Recipients:  []string{r.Occupant.TokenValue},
			Title:       "Réservation",
			Subtitle:    note.Title,
			Body:        OccupantStatusMessage(r.Status),
			Data:        map[string]string{"reservation": r.Code, "status": string(r.Status)},
			Reservation: r.Code,
			Place:       r.Place,
			CreatedAt:   n.now().UTC(),
		})
	}
}

func (n *Notifier) publish(ctx context.Context, log *slog.Logger, ev queue.NotificationEvent) {
	if err := n.pub.Publish(ctx, ev); err != nil {
		log.Warn("notification publish failed", "error", err)
		n.metrics.Notification("publish", "failed")
		return
	}
	n.metrics.Notification("publish", "ok")
}

// staffTokens collects the push tokens of the active admins of company
// and the active supervisors of house.
func (n *Notifier) staffTokens(ctx context.Context, company, house string) ([]string, error) {
	users, err := n.users.ListByCompany(ctx, company)
	if err != nil {
		return nil, err
	}
	var tokens []string
	seen := map[string]bool{}
	for _, u := range users {
		if !u.CanAct() || !u.WatchesHouse(house) {
			continue
		}
		for _, t := range u.PushTokens {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}
