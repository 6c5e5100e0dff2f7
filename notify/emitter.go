package notify

import (
	"context"
	"log"
)

// Emitter creates notifications best-effort. A failed creation is logged and
// swallowed so the triggering state transition is never aborted by a
// secondary write.
type Emitter struct {
	repo   Repository
	logger *log.Logger
}

// NewEmitter builds an Emitter using the provided repository.
func NewEmitter(repo Repository, logger *log.Logger) *Emitter {
	if logger == nil {
		logger = log.Default()
	}
	return &Emitter{repo: repo, logger: logger}
}

// Emit attempts to create the notification. It reports whether the record was
// created; errors are only ever logged.
func (e *Emitter) Emit(ctx context.Context, n Notification) bool {
	if _, err := e.repo.Create(ctx, n); err != nil {
		e.logger.Printf("notify emit failed kind=%s related_id=%s err=%v", n.Kind, n.RelatedID, err)
		return false
	}
	return true
}
