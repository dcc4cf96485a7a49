package taskservice

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagan-sh/kagan-core/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Repositories) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kagan.db")
	db, err := store.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	repos := store.NewRepositories(db)
	return New(repos), repos
}

func TestIsTransitionPermittedOnlyAllowsDocumentedEdges(t *testing.T) {
	require.True(t, IsTransitionPermitted(store.TaskStatusBacklog, store.TaskStatusInProgress))
	require.True(t, IsTransitionPermitted(store.TaskStatusInProgress, store.TaskStatusReview))
	require.True(t, IsTransitionPermitted(store.TaskStatusReview, store.TaskStatusDone))
	require.True(t, IsTransitionPermitted(store.TaskStatusReview, store.TaskStatusInProgress))

	require.False(t, IsTransitionPermitted(store.TaskStatusBacklog, store.TaskStatusDone))
	require.False(t, IsTransitionPermitted(store.TaskStatusDone, store.TaskStatusBacklog))
	require.False(t, IsTransitionPermitted(store.TaskStatusInProgress, store.TaskStatusDone))
}

func TestSetStatusIsNoOpOnDisallowedEdge(t *testing.T) {
	svc, repos := newTestService(t)
	ctx := context.Background()

	proj := &store.Project{Name: "demo"}
	require.NoError(t, repos.Projects.Create(ctx, proj))

	task := &store.Task{ProjectID: proj.ID, Title: "Fix login", Status: store.TaskStatusBacklog}
	_, err := svc.Create(ctx, task, "acceptance criterion")
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, task.ID, store.TaskStatusDone)
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusBacklog, updated.Status)
}

func TestSyncStatusFromAgentCompleteOnlyAdvancesOnSuccess(t *testing.T) {
	svc, repos := newTestService(t)
	ctx := context.Background()

	proj := &store.Project{Name: "demo"}
	require.NoError(t, repos.Projects.Create(ctx, proj))

	task := &store.Task{ProjectID: proj.ID, Title: "Fix login", Status: store.TaskStatusInProgress}
	_, err := svc.Create(ctx, task, nil)
	require.NoError(t, err)

	unchanged, err := svc.SyncStatusFromAgentComplete(ctx, task.ID, false)
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusInProgress, unchanged.Status)

	advanced, err := svc.SyncStatusFromAgentComplete(ctx, task.ID, true)
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusReview, advanced.Status)
}

func TestNormalizeAcceptanceCriteriaWrapsSingleString(t *testing.T) {
	out, err := NormalizeAcceptanceCriteria("must compile")
	require.NoError(t, err)
	require.Equal(t, []string{"must compile"}, out)
}

func TestNormalizeAcceptanceCriteriaPreservesListOrder(t *testing.T) {
	out, err := NormalizeAcceptanceCriteria([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, out)
}

func TestUpdateScratchpadTruncatesToCap(t *testing.T) {
	svc, repos := newTestService(t)
	ctx := context.Background()

	proj := &store.Project{Name: "demo"}
	require.NoError(t, repos.Projects.Create(ctx, proj))
	task := &store.Task{ProjectID: proj.ID, Title: "t"}
	_, err := svc.Create(ctx, task, nil)
	require.NoError(t, err)

	big := make([]byte, ScratchpadCap+500)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	big = append(big, []byte("TAIL-MARKER")...)

	sp, err := svc.UpdateScratchpad(ctx, task.ID, string(big))
	require.NoError(t, err)
	require.LessOrEqual(t, len([]rune(sp.Content)), ScratchpadCap)
	require.Contains(t, sp.Content, "TAIL-MARKER")
}

func TestTruncateTailReturnsOriginalWhenWithinCap(t *testing.T) {
	require.Equal(t, "short", TruncateTail("short", 100))
}
