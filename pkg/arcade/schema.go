package arcade

import (
	"context"
	"log/slog"
	"sync"
)

// schemaStatements is the idempotent bootstrap DDL. Every statement uses
// IF NOT EXISTS so re-running against an initialized database is harmless.
var schemaStatements = []string{
	"CREATE DOCUMENT TYPE SwarmTask IF NOT EXISTS",
	"CREATE PROPERTY SwarmTask.taskId IF NOT EXISTS STRING",
	"CREATE PROPERTY SwarmTask.runId IF NOT EXISTS STRING",
	"CREATE PROPERTY SwarmTask.status IF NOT EXISTS STRING",
	"CREATE PROPERTY SwarmTask.updatedAt IF NOT EXISTS DATETIME_MICROS",
	"CREATE INDEX IF NOT EXISTS ON SwarmTask (taskId) UNIQUE",

	"CREATE DOCUMENT TYPE SwarmRun IF NOT EXISTS",
	"CREATE PROPERTY SwarmRun.runId IF NOT EXISTS STRING",
	"CREATE PROPERTY SwarmRun.startedAt IF NOT EXISTS DATETIME_MICROS",
	"CREATE INDEX IF NOT EXISTS ON SwarmRun (runId) UNIQUE",

	"CREATE DOCUMENT TYPE TaskOutcome IF NOT EXISTS",
	"CREATE PROPERTY TaskOutcome.taskId IF NOT EXISTS STRING",
	"CREATE PROPERTY TaskOutcome.runId IF NOT EXISTS STRING",

	"CREATE DOCUMENT TYPE TaskExecutionEvent IF NOT EXISTS",
	"CREATE PROPERTY TaskExecutionEvent.eventId IF NOT EXISTS STRING",
	"CREATE PROPERTY TaskExecutionEvent.taskId IF NOT EXISTS STRING",
	"CREATE PROPERTY TaskExecutionEvent.runId IF NOT EXISTS STRING",
	"CREATE PROPERTY TaskExecutionEvent.taskSequence IF NOT EXISTS LONG",
	"CREATE PROPERTY TaskExecutionEvent.runSequence IF NOT EXISTS LONG",
	"CREATE INDEX IF NOT EXISTS ON TaskExecutionEvent (eventId) UNIQUE",
	"CREATE INDEX IF NOT EXISTS ON TaskExecutionEvent (taskId, taskSequence) NOTUNIQUE",
	"CREATE INDEX IF NOT EXISTS ON TaskExecutionEvent (runId, runSequence) NOTUNIQUE",
}

// schemaEnsurer runs the bootstrap at most once per process. Failures are
// logged at debug and never abort writes; the backend may simply predate
// this process.
type schemaEnsurer struct {
	client *Client
	once   sync.Once
	logger *slog.Logger
}

func newSchemaEnsurer(client *Client, logger *slog.Logger) *schemaEnsurer {
	return &schemaEnsurer{client: client, logger: logger}
}

func (s *schemaEnsurer) ensure(ctx context.Context) {
	s.once.Do(func() {
		for _, stmt := range schemaStatements {
			if _, err := s.client.Command(ctx, stmt, nil); err != nil {
				s.logger.Debug("Schema bootstrap statement failed", "statement", stmt, "error", err)
			}
		}
	})
}
