package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// Mailer dispatches an outbound message. Implementations live in the
// integration package and are selected once at startup.
type Mailer interface {
	// Name identifies the transport (ses, gmail, none).
	Name() string
	Send(ctx context.Context, msg Reply) error
}

// SchedulerConfig holds the dependencies of a Scheduler. Mailer, Logger,
// Events and Now are optional.
type SchedulerConfig struct {
	Threads storage.ThreadRepository
	Mailer  Mailer
	// Send enables dispatch. When false, due steps are only recorded.
	Send   bool
	Logger *zap.Logger
	Events EventLogger
	Now    func() time.Time
}

// DueFollowUp is a follow-up step whose time has come.
type DueFollowUp struct {
	ThreadID string    `json:"threadId"`
	Step     int       `json:"step"`
	Reason   string    `json:"reason"`
	DueAt    time.Time `json:"dueAt"`
	Message  Reply     `json:"message"`
	Sent     bool      `json:"sent"`
	Error    string    `json:"error,omitempty"`
}

// FollowUpResult summarises one scheduler pass.
type FollowUpResult struct {
	Threads  int           `json:"threads"`
	Recorded int           `json:"recorded"`
	Sent     int           `json:"sent"`
	Failed   int           `json:"failed"`
	Due      []DueFollowUp `json:"due"`
	Invalid  []string      `json:"invalid,omitempty"`
}

// Scheduler sends severity-based follow-ups for registered threads.
//
// A due step is recorded as sent in the same pass that finds it due, before
// and regardless of the dispatch outcome. Running the scheduler twice inside
// one due window therefore never sends a step twice, but a transport failure
// drops that step's message instead of retrying it.
type Scheduler struct {
	threads storage.ThreadRepository
	mailer  Mailer
	send    bool
	logger  *zap.Logger
	events  EventLogger
	now     func() time.Time
}

// NewScheduler creates a Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		threads: cfg.Threads,
		mailer:  cfg.Mailer,
		send:    cfg.Send,
		logger:  cfg.Logger,
		events:  cfg.Events,
		now:     cfg.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// sending reports whether dispatch is both enabled and has a real transport.
func (s *Scheduler) sending() bool {
	return s.send && s.mailer != nil && s.mailer.Name() != "none"
}

// Pending lists the steps due at now without recording or sending anything.
func (s *Scheduler) Pending() ([]DueFollowUp, error) {
	threads, err := s.threads.Load()
	if err != nil {
		return nil, fmt.Errorf("loading threads: %w", err)
	}
	now := s.now()
	var due []DueFollowUp
	for _, t := range threads {
		steps, err := DueSteps(t, now)
		if err != nil {
			continue
		}
		due = append(due, steps...)
	}
	return due, nil
}

// Run performs one pass: every due, unrecorded step is recorded, dispatched
// if sending is enabled, and the store is saved once at the end.
func (s *Scheduler) Run(ctx context.Context) (*FollowUpResult, error) {
	if locker, ok := s.threads.(storage.Locker); ok {
		unlock, err := locker.Lock()
		if err != nil {
			return nil, fmt.Errorf("locking follow-up store: %w", err)
		}
		defer unlock()
	}

	threads, err := s.threads.Load()
	if err != nil {
		return nil, fmt.Errorf("loading threads: %w", err)
	}

	now := s.now()
	result := &FollowUpResult{Threads: len(threads), Due: []DueFollowUp{}}
	sending := s.sending()

	for i := range threads {
		t := &threads[i]
		steps, err := DueSteps(*t, now)
		if err != nil {
			s.logger.Warn("skipping thread with invalid createdAt", zap.String("thread", t.ID), zap.Error(err))
			result.Invalid = append(result.Invalid, t.ID)
			continue
		}

		for _, step := range steps {
			if !t.MarkSent(step.Step) {
				continue
			}
			result.Recorded++
			logEvent(s.events, "followup.recorded", map[string]any{
				"thread_id": t.ID, "step": step.Step, "reason": step.Reason,
			})

			if sending {
				if err := s.mailer.Send(ctx, step.Message); err != nil {
					step.Error = err.Error()
					result.Failed++
					s.logger.Error("sending follow-up",
						zap.String("thread", t.ID),
						zap.Int("step", step.Step),
						zap.String("transport", s.mailer.Name()),
						zap.Error(err))
					logEvent(s.events, "followup.failed", map[string]any{
						"thread_id": t.ID, "step": step.Step, "error": err.Error(),
					})
				} else {
					step.Sent = true
					result.Sent++
					logEvent(s.events, "followup.sent", map[string]any{
						"thread_id": t.ID, "step": step.Step, "transport": s.mailer.Name(),
					})
				}
			}
			result.Due = append(result.Due, step)
		}
	}

	if result.Recorded > 0 {
		if err := s.threads.Save(threads); err != nil {
			return result, fmt.Errorf("saving threads: %w", err)
		}
	}
	return result, nil
}

// DueSteps returns the unrecorded plan steps of t that are due at now, with
// their messages built. A step with offset h is due from createdAt+h onward.
func DueSteps(t models.Thread, now time.Time) ([]DueFollowUp, error) {
	created, err := t.Created()
	if err != nil {
		return nil, err
	}
	var due []DueFollowUp
	for i, step := range FollowUpPlan(t.Severity) {
		if t.HasSent(i) {
			continue
		}
		dueAt := created.Add(time.Duration(step.InHours) * time.Hour)
		if now.Before(dueAt) {
			continue
		}
		due = append(due, DueFollowUp{
			ThreadID: t.ID,
			Step:     i,
			Reason:   step.Reason,
			DueAt:    dueAt,
			Message:  FollowUpMessage(t, step),
		})
	}
	return due, nil
}

// FollowUpMessage builds the follow-up reply for one step of a thread. The
// first detector with a recorded category supplies the body; otherwise a
// generic body is used.
func FollowUpMessage(t models.Thread, step models.FollowUpStep) Reply {
	msg := Reply{
		To:      t.Event.From,
		Subject: replySubject(t.Event.Subject) + " [Follow-up: " + step.Reason + "]",
	}
	if name, cat, ok := t.Categories.Primary(DetectorOrder()); ok {
		det, _ := DetectorByName(name)
		msg.Text = "Update: " + step.Reason + "\n\n" + det.BuildFollowUpText(cat, t.Severity)
		return msg
	}
	msg.Text = GenericFollowUpText(t.Event.Subject, step.Reason, t.Severity)
	return msg
}
