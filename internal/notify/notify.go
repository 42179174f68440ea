// Package notify delivers job start and completion summaries. Delivery is
// best effort: the job controller never sees a notifier failure.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/config"
	"github.com/sells-group/catalog-sync/internal/model"
	"github.com/sells-group/catalog-sync/pkg/notion"
)

// EventKind identifies a job boundary.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventCompleted EventKind = "completed"
	EventPaused    EventKind = "paused"
	EventFailed    EventKind = "failed"
)

// Event is a job boundary notification.
type Event struct {
	Kind     EventKind           `json:"kind"`
	JobType  model.JobType       `json:"job_type"`
	RunID    string              `json:"run_id"`
	Message  string              `json:"message"`
	Progress model.BatchProgress `json:"progress"`
	At       time.Time           `json:"at"`
}

// Started builds the event sent before a run begins work.
func Started(p model.BatchProgress) Event {
	return newEvent(EventStarted, p)
}

// Finished builds the summary event for a run in a terminal state.
func Finished(p model.BatchProgress) Event {
	kind := EventCompleted
	switch p.Status {
	case model.JobStatusPaused:
		kind = EventPaused
	case model.JobStatusError:
		kind = EventFailed
	}
	return newEvent(kind, p)
}

func newEvent(kind EventKind, p model.BatchProgress) Event {
	e := Event{
		Kind:     kind,
		JobType:  p.JobType,
		RunID:    p.RunID,
		Progress: p,
		At:       time.Now().UTC(),
	}
	e.Message = e.Summary()
	return e
}

// Summary is a one-line human readable description of the event.
func (e Event) Summary() string {
	p := e.Progress
	if e.Kind == EventStarted {
		return fmt.Sprintf("%s run %s started: %d items in %d batches",
			e.JobType, e.RunID, p.TotalItems, p.TotalBatches)
	}
	s := fmt.Sprintf("%s run %s %s: %d/%d processed (%d ok, %d failed), %d values collected",
		e.JobType, e.RunID, e.Kind, p.ProcessedItems, p.TotalItems,
		p.SucceededItems, p.FailedItems, p.ValuesCollected)
	if p.LastError != "" {
		s += "; last error: " + p.LastError
	}
	return s
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Multi fans an event out to every notifier. All notifiers are attempted;
// their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to the global logger.
type Log struct {
	log *zap.Logger
}

// NewLog creates a log-only notifier.
func NewLog() *Log {
	return &Log{log: zap.L().With(zap.String("component", "notify"))}
}

func (l *Log) Notify(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.String("job_type", string(e.JobType)),
		zap.String("run_id", e.RunID),
		zap.Int("processed", e.Progress.ProcessedItems),
		zap.Int("failed", e.Progress.FailedItems),
	}
	if e.Kind == EventFailed {
		l.log.Warn(e.Message, fields...)
		return nil
	}
	l.log.Info(e.Message, fields...)
	return nil
}

// Safe wraps a notifier with a timeout and swallows its errors after
// logging them.
type Safe struct {
	inner   Notifier
	timeout time.Duration
}

// NewSafe wraps inner. A non-positive timeout defaults to 10s.
func NewSafe(inner Notifier, timeout time.Duration) *Safe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Safe{inner: inner, timeout: timeout}
}

// Notify always returns nil.
func (s *Safe) Notify(ctx context.Context, e Event) error {
	if s == nil || s.inner == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("notify: notifier panicked",
				zap.String("run_id", e.RunID),
				zap.Any("panic", r),
			)
		}
	}()

	if err := s.inner.Notify(ctx, e); err != nil {
		zap.L().Warn("notify: delivery failed",
			zap.String("kind", string(e.Kind)),
			zap.String("run_id", e.RunID),
			zap.Error(err),
		)
	}
	return nil
}

// FromConfig builds the configured notifier chain: always a log notifier,
// plus webhook and Notion when configured, all behind Safe.
func FromConfig(cfg *config.Config) Notifier {
	timeout := time.Duration(cfg.Notify.TimeoutSecs) * time.Second
	chain := Multi{NewLog()}
	if cfg.Notify.WebhookURL != "" {
		chain = append(chain, NewWebhook(cfg.Notify.WebhookURL, timeout))
	}
	if cfg.Notion.Token != "" && cfg.Notion.JobLogDB != "" {
		chain = append(chain, NewNotion(notion.NewClient(cfg.Notion.Token), cfg.Notion.JobLogDB))
	}
	return NewSafe(chain, timeout)
}
