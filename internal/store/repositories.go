package store

// Repositories aggregates the per-aggregate repositories backing the
// Store's public surface. Every mutating method on every repository
// acquires that repository's own mutex before touching the connection,
// so check-then-act sequences (get-or-create, conditional update) never
// race across goroutines sharing one *DB.
type Repositories struct {
	db *DB

	Tasks       *TaskRepo
	Projects    *ProjectRepo
	Workspaces  *WorkspaceRepo
	Executions  *ExecutionRepo
	Sessions    *SessionRepo
	Scratchpads *ScratchpadRepo
	Audit       *AuditRepo
	Runtime     *RuntimeRepo
	Settings    *SettingsRepo
}

// NewRepositories constructs a Repositories bound to an already-migrated DB.
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		db:          db,
		Tasks:       newTaskRepo(db),
		Projects:    newProjectRepo(db),
		Workspaces:  newWorkspaceRepo(db),
		Executions:  newExecutionRepo(db),
		Sessions:    newSessionRepo(db),
		Scratchpads: newScratchpadRepo(db),
		Audit:       newAuditRepo(db),
		Runtime:     newRuntimeRepo(db),
		Settings:    newSettingsRepo(db),
	}
}
