// Package dispatch fans a notification out to every subscription of a user
// and reconciles the store with the per-endpoint outcomes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

// Status distinguishes a completed send from a user with no devices.
type Status int

const (
	StatusSent Status = iota
	StatusNotSubscribed
)

func (s Status) String() string {
	if s == StatusNotSubscribed {
		return "not_subscribed"
	}
	return "sent"
}

// Report summarizes one send. DeviceCount is the number of subscriptions
// attempted; the per-kind counters exist for logs and receipts only.
type Report struct {
	Status      Status
	DeviceCount int
	Delivered   int
	Gone        int
	Transient   int
	Purged      int
}

// Receipt renders the report in the service's log receipt format.
func (r Report) Receipt() string {
	return fmt.Sprintf("success:%d invalid:%d total_fail:%d", r.Delivered, r.Gone, r.Gone+r.Transient)
}

// Outcome is the tagged result of one delivery task.
type Outcome struct {
	Subscription push.Subscription
	Kind         push.Kind
	Err          error
}

// Dispatcher owns payload serialization, the concurrent fan-out and the
// cleanup of gone subscriptions.
type Dispatcher struct {
	store          push.Store
	transport      push.Transport
	maxConcurrency int
	logger         *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxConcurrency bounds simultaneous deliveries per send. n <= 0 means
// one goroutine per subscription.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) { d.maxConcurrency = n }
}

func New(store push.Store, transport push.Transport, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		transport: transport,
		logger:    logger.With("component", "Dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers n to every subscription of userID.
//
// A store read failure is returned as *push.StorageError. Once deliveries
// start they are detached from ctx cancellation and all run to completion;
// delivery and cleanup failures are logged, never returned.
func (d *Dispatcher) Send(ctx context.Context, userID string, n push.Notification) (Report, error) {
	log := d.logger.With("user_id", userID)
	// Nobody can be subscribed under an empty id.
	if strings.TrimSpace(userID) == "" {
		log.Info("No subscriptions registered for user")
		return Report{Status: StatusNotSubscribed}, nil
	}

	// Loaded
	subs, err := d.store.ListByUser(ctx, userID)
	if err != nil {
		var sErr *push.StorageError
		if !errors.As(err, &sErr) {
			err = &push.StorageError{Op: "list", Err: err}
		}
		log.Error("Failed to load subscriptions", "err", err)
		return Report{}, err
	}
	if len(subs) == 0 {
		log.Info("No subscriptions registered for user")
		return Report{Status: StatusNotSubscribed}, nil
	}

	payload, err := push.EncodeNotification(n)
	if err != nil {
		return Report{}, err
	}

	runCtx := context.WithoutCancel(ctx)

	// Dispatching
	outcomes := d.fanOut(runCtx, subs, payload)

	// Reconciled
	report := Report{Status: StatusSent, DeviceCount: len(subs)}
	for _, o := range outcomes {
		switch o.Kind {
		case push.KindDelivered:
			report.Delivered++
		case push.KindGone:
			report.Gone++
			log.Info("Subscription expired, deleting", "subscription_id", o.Subscription.ID, "err", o.Err)
			if err := d.store.DeleteByID(runCtx, o.Subscription.ID); err != nil {
				log.Warn("Failed to delete expired subscription", "subscription_id", o.Subscription.ID, "err", err)
				continue
			}
			report.Purged++
		case push.KindTransient:
			report.Transient++
			log.Warn("Push delivery failed", "subscription_id", o.Subscription.ID, "endpoint", o.Subscription.Endpoint, "err", o.Err)
		}
	}

	log.Info("Notification dispatched", "devices", report.DeviceCount, "receipt", report.Receipt())
	return report, nil
}

// fanOut runs one task per subscription and waits for all of them. Each
// task writes only its own slot, so the slice needs no lock.
func (d *Dispatcher) fanOut(ctx context.Context, subs []push.Subscription, payload []byte) []Outcome {
	outcomes := make([]Outcome, len(subs))

	var g errgroup.Group
	if d.maxConcurrency > 0 {
		g.SetLimit(d.maxConcurrency)
	}
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, sub, payload)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// deliver never panics; a faulting transport counts as a transient failure.
func (d *Dispatcher) deliver(ctx context.Context, sub push.Subscription, payload []byte) (o Outcome) {
	o.Subscription = sub
	defer func() {
		if r := recover(); r != nil {
			o.Kind = push.KindTransient
			o.Err = push.Transient(0, fmt.Errorf("transport panic: %v", r))
		}
	}()

	err := d.transport.Send(ctx, sub, payload)
	o.Kind = push.KindOf(err)
	o.Err = err
	return o
}
