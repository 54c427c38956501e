package core

import "context"

// Archiver persists conversation turns to long-term storage (the graph store
// in the default deployment). Archival is best-effort: orchestration never
// fails because a turn could not be archived.
type Archiver interface {
	ArchiveTurn(ctx context.Context, guard GuardRailContext, t Turn) error
}
