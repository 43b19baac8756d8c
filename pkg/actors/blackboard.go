package actors

import (
	"log/slog"
	"time"
)

// BlackboardEntry is one bulletin item.
type BlackboardEntry struct {
	Value    string    `json:"value"`
	Author   string    `json:"author"`
	PostedAt time.Time `json:"posted_at"`
}

type postNote struct {
	key   string
	entry BlackboardEntry
}

type readBoard struct{ reply chan map[string]BlackboardEntry }

// Blackboard is a shared bulletin for stigmergy signals between agents.
// It is advisory only: nothing on the task-critical path waits on it.
type Blackboard struct {
	mailbox *Mailbox
	entries map[string]BlackboardEntry
}

// NewBlackboard builds the blackboard actor.
func NewBlackboard(logger *slog.Logger) *Blackboard {
	b := &Blackboard{entries: make(map[string]BlackboardEntry)}
	b.mailbox = NewMailbox("blackboard", b.handle, logger)
	return b
}

func (b *Blackboard) handle(msg any) {
	switch m := msg.(type) {
	case postNote:
		b.entries[m.key] = m.entry
	case readBoard:
		copied := make(map[string]BlackboardEntry, len(b.entries))
		for k, v := range b.entries {
			copied[k] = v
		}
		m.reply <- copied
	}
}

// Start launches the actor.
func (b *Blackboard) Start() { b.mailbox.Start() }

// Stop drains and stops the actor.
func (b *Blackboard) Stop() { b.mailbox.Stop() }

// Post publishes a note. Fire-and-forget.
func (b *Blackboard) Post(key, value, author string) {
	b.mailbox.Send(postNote{key: key, entry: BlackboardEntry{
		Value:    value,
		Author:   author,
		PostedAt: time.Now().UTC(),
	}})
}

// Snapshot returns a copy of the board, bounded like the supervisor query.
func (b *Blackboard) Snapshot() map[string]BlackboardEntry {
	reply := make(chan map[string]BlackboardEntry, 1)
	if !b.mailbox.Send(readBoard{reply: reply}) {
		return nil
	}
	select {
	case board := <-reply:
		return board
	case <-time.After(snapshotTimeout):
		return nil
	}
}
