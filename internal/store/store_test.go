package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "kagan.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepositories(db)
}

func TestTaskCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	proj := &Project{Name: "demo"}
	require.NoError(t, repos.Projects.Create(ctx, proj))

	task := &Task{
		ProjectID:          proj.ID,
		Title:              "Fix login",
		TaskType:           TaskTypeAuto,
		AcceptanceCriteria: []string{"login works"},
	}
	require.NoError(t, repos.Tasks.Create(ctx, task))

	got, err := repos.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, TaskStatusBacklog, got.Status)
	require.Equal(t, []string{"login works"}, got.AcceptanceCriteria)
}

func TestExecutionRunIndexMonotonic(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	proj := &Project{Name: "demo"}
	require.NoError(t, repos.Projects.Create(ctx, proj))
	task := &Task{ProjectID: proj.ID, Title: "T", TaskType: TaskTypeAuto}
	require.NoError(t, repos.Tasks.Create(ctx, task))
	ws := &Workspace{TaskID: task.ID}
	require.NoError(t, repos.Workspaces.Create(ctx, ws))

	for want := 1; want <= 3; want++ {
		exec := &Execution{TaskID: task.ID, WorkspaceID: ws.ID}
		require.NoError(t, repos.Executions.Create(ctx, exec))
		require.Equal(t, want, exec.RunIndex)
	}

	all, err := repos.Executions.ListForTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, e := range all {
		require.Equal(t, i+1, e.RunIndex)
	}
}

func TestRepositoryClosingSentinel(t *testing.T) {
	ctx := context.Background()
	db, err := New(filepath.Join(t.TempDir(), "kagan.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	repos := NewRepositories(db)

	require.NoError(t, db.Close())

	_, err = repos.Projects.List(ctx)
	require.ErrorIs(t, err, RepositoryClosing)
}

func TestScratchpadSetAndGet(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	proj := &Project{Name: "demo"}
	require.NoError(t, repos.Projects.Create(ctx, proj))
	task := &Task{ProjectID: proj.ID, Title: "T"}
	require.NoError(t, repos.Tasks.Create(ctx, task))

	require.NoError(t, repos.Scratchpads.Set(ctx, task.ID, "hello"))
	sp, err := repos.Scratchpads.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", sp.Content)

	require.NoError(t, repos.Scratchpads.Set(ctx, task.ID, "world"))
	sp, err = repos.Scratchpads.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "world", sp.Content)
}
