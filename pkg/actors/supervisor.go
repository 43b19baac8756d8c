package actors

import (
	"errors"
	"log/slog"
	"time"
)

// snapshotTimeout bounds how long a snapshot query waits for the supervisor.
const snapshotTimeout = 2 * time.Second

// ErrSupervisorBusy means the supervisor did not answer within the bound.
var ErrSupervisorBusy = errors.New("supervisor snapshot timed out")

// Stats are the supervisor's aggregate counters.
type Stats struct {
	Started     int64 `json:"started"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Escalations int64 `json:"escalations"`
}

type incStarted struct{}
type incCompleted struct{}
type incFailed struct{}
type incEscalation struct{}
type getSnapshot struct{ reply chan Stats }

// Supervisor tracks task lifecycle counters. State is confined to the actor;
// callers interact through messages only.
type Supervisor struct {
	mailbox *Mailbox
	stats   Stats
}

// NewSupervisor builds the supervisor actor.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	s := &Supervisor{}
	s.mailbox = NewMailbox("supervisor", s.handle, logger)
	return s
}

func (s *Supervisor) handle(msg any) {
	switch m := msg.(type) {
	case incStarted:
		s.stats.Started++
	case incCompleted:
		s.stats.Completed++
	case incFailed:
		s.stats.Failed++
	case incEscalation:
		s.stats.Escalations++
	case getSnapshot:
		m.reply <- s.stats
	}
}

// Start launches the actor.
func (s *Supervisor) Start() { s.mailbox.Start() }

// Stop drains and stops the actor.
func (s *Supervisor) Stop() { s.mailbox.Stop() }

// TaskStarted records a task entering coordination.
func (s *Supervisor) TaskStarted() { s.mailbox.Send(incStarted{}) }

// TaskCompleted records a task reaching Done.
func (s *Supervisor) TaskCompleted() { s.mailbox.Send(incCompleted{}) }

// TaskFailed records a task reaching Blocked.
func (s *Supervisor) TaskFailed() { s.mailbox.Send(incFailed{}) }

// Escalation records an escalation decision.
func (s *Supervisor) Escalation() { s.mailbox.Send(incEscalation{}) }

// Snapshot returns the current counters, bounded by a 2-second timeout so a
// wedged supervisor cannot stall health endpoints.
func (s *Supervisor) Snapshot() (Stats, error) {
	reply := make(chan Stats, 1)
	if !s.mailbox.Send(getSnapshot{reply: reply}) {
		return Stats{}, ErrSupervisorBusy
	}
	select {
	case stats := <-reply:
		return stats, nil
	case <-time.After(snapshotTimeout):
		return Stats{}, ErrSupervisorBusy
	}
}
