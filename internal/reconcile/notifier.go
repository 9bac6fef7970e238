package reconcile

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Notifier delivers notices to the shopper or to downstream systems.
type Notifier interface {
	Notify(ctx context.Context, notices ...Notice) error
}

type NotifierFunc func(ctx context.Context, notices ...Notice) error

func (f NotifierFunc) Notify(ctx context.Context, notices ...Notice) error {
	return f(ctx, notices...)
}

// LogNotifier writes each notice as a log entry, critical notices at error
// level.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(_ context.Context, notices ...Notice) error {
	for _, notice := range notices {
		entry := n.Log.WithFields(logrus.Fields{
			"kind":       notice.Kind,
			"source":     notice.Source,
			"product_id": notice.ProductID,
			"old_stock":  notice.OldStock,
			"new_stock":  notice.NewStock,
		})
		switch notice.Severity {
		case Critical:
			entry.Error(notice.Message)
		case Warning:
			entry.Warn(notice.Message)
		default:
			entry.Info(notice.Message)
		}
	}
	return nil
}

// Multi fans notices out to every notifier. A failing notifier does not stop
// the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, notices ...Notice) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, notices...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
