package api

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kagan-sh/kagan-core/internal/agentsession"
	"github.com/kagan-sh/kagan-core/internal/ipc"
	"github.com/kagan-sh/kagan-core/internal/plugins"
	"github.com/kagan-sh/kagan-core/internal/scheduler"
	"github.com/kagan-sh/kagan-core/internal/store"
	"github.com/kagan-sh/kagan-core/internal/taskservice"
	"github.com/kagan-sh/kagan-core/internal/worktree"
)

// stubLauncher hands every scheduler turn a shell script that speaks just
// enough of the ACP wire protocol to exercise the run loop end to end: a
// non-read-only (run-turn) launch gets runScript, a read-only
// (review-turn) launch gets reviewScript.
type stubLauncher struct {
	runScript    string
	reviewScript string
}

func (l *stubLauncher) Launch(task *store.Task, ws *store.Workspace, prompt string, readOnly bool) (agentsession.SpawnOptions, error) {
	script := l.runScript
	if readOnly {
		script = l.reviewScript
	}
	return agentsession.SpawnOptions{
		Binary:  script,
		WorkDir: ws.Repos[0].WorktreePath,
		ID:      task.ID,
	}, nil
}

// writeStubAgent writes an executable shell script under dir that prints
// the given newline-delimited JSON frames to stdout and exits 0.
func writeStubAgent(t *testing.T, dir, name string, frames []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var body string
	for _, f := range frames {
		body += fmt.Sprintf("echo '%s'\n", f)
	}
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main", dir},
		{"-C", dir, "config", "user.email", "kagan-test@example.com"},
		{"-C", dir, "config", "user.name", "Kagan Test"},
	} {
		cmd := exec.Command("git", args...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	return dir
}

type testHarness struct {
	repos     *store.Repositories
	tasks     *taskservice.Service
	scheduler *scheduler.Scheduler
	boundary  *Boundary
	project   *store.Project
	binding   ipc.SessionBinding
}

func newTestHarness(t *testing.T, launcher scheduler.AgentLauncher, autoReview bool) *testHarness {
	t.Helper()
	ctx := context.Background()

	db, err := store.New(filepath.Join(t.TempDir(), "kagan.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	repos := store.NewRepositories(db)
	tasks := taskservice.New(repos)
	worktrees := worktree.NewManager(t.TempDir())

	sched := scheduler.New(repos, tasks, worktrees, launcher, agentsession.PermissionPolicy{}, scheduler.Config{
		MaxConcurrentAgents: 2,
		MaxRuns:             5,
		AutoReviewEnabled:   autoReview,
	})

	registry := plugins.NewRegistry()
	plugins.RegisterNoop(registry)

	boundary := New(repos, tasks, sched, worktrees, registry)

	proj := &store.Project{Name: "demo"}
	require.NoError(t, repos.Projects.Create(ctx, proj))
	repo := &store.Repo{ProjectID: proj.ID, Path: initGitRepo(t), DisplayName: "demo-repo", DefaultBranch: "main"}
	require.NoError(t, repos.Projects.AddRepo(ctx, repo))

	return &testHarness{
		repos:     repos,
		tasks:     tasks,
		scheduler: sched,
		boundary:  boundary,
		project:   proj,
		binding:   ipc.SessionBinding{SessionID: "s1", CapabilityProfile: agentsession.CapabilityMaintainer, Identity: "test"},
	}
}

func (h *testHarness) dispatch(t *testing.T, capability, method string, params map[string]any) ipc.Response {
	t.Helper()
	return h.boundary.Dispatch(context.Background(), h.binding, ipc.Request{
		RequestID:  "r-" + capability + "-" + method,
		Capability: capability,
		Method:     method,
		Params:     params,
	})
}

// TestAutoRoundTrip is the §8 "Auto round-trip" testable property: an
// AUTO task's agent emits "working" then signals completion, and the
// scheduler carries the execution to SUCCEEDED and the task to REVIEW.
func TestAutoRoundTrip(t *testing.T) {
	dir := t.TempDir()
	runScript := writeStubAgent(t, dir, "agent-run.sh", []string{
		`{"method":"session/update","params":{"kind":"text","text":{"text":"working\n"}}}`,
		`{"method":"session/update","params":{"kind":"text","text":{"text":"<complete/>"}}}`,
		`{"method":"agent_complete","params":{}}`,
	})
	h := newTestHarness(t, &stubLauncher{runScript: runScript}, false)

	resp := h.dispatch(t, "task", "create", map[string]any{
		"project_id": h.project.ID,
		"title":      "Fix login",
		"task_type":  "AUTO",
	})
	require.True(t, resp.OK)
	taskPayload := resp.Result["task"].(map[string]any)
	taskID := taskPayload["id"].(string)

	resp = h.dispatch(t, "execution", "start", map[string]any{"task_id": taskID})
	require.True(t, resp.OK)

	require.Eventually(t, func() bool {
		task, err := h.repos.Tasks.Get(context.Background(), taskID)
		return err == nil && task.Status == store.TaskStatusReview
	}, 5*time.Second, 20*time.Millisecond)

	exec, err := h.repos.Executions.LatestForTask(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, store.ExecutionStatusSucceeded, exec.Status)
	require.Equal(t, 1, exec.RunIndex)

	scratchpad, err := h.repos.Scratchpads.Get(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, "", scratchpad.Content)

	entries, err := h.repos.Audit.List(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.True(t, entries[0].Success)
}

// TestReviewRejectCycle is the §8 "Review reject cycle" testable
// property: rejecting a REVIEW-stage task returns it to IN_PROGRESS with
// the reviewer's summary folded into the scratchpad and recorded on the
// execution's metadata.
func TestReviewRejectCycle(t *testing.T) {
	h := newTestHarness(t, &stubLauncher{}, false)
	ctx := context.Background()

	task := &store.Task{ProjectID: h.project.ID, Title: "Fix login", TaskType: store.TaskTypeAuto}
	require.NoError(t, h.repos.Tasks.Create(ctx, task))
	ws := &store.Workspace{TaskID: task.ID}
	require.NoError(t, h.repos.Workspaces.Create(ctx, ws))
	execution := &store.Execution{TaskID: task.ID, WorkspaceID: ws.ID}
	require.NoError(t, h.repos.Executions.Create(ctx, execution))
	_, err := h.tasks.SetStatus(ctx, task.ID, store.TaskStatusInProgress)
	require.NoError(t, err)
	_, err = h.tasks.SetStatus(ctx, task.ID, store.TaskStatusReview)
	require.NoError(t, err)

	resp := h.dispatch(t, "execution", "review_apply", map[string]any{
		"task_id":      task.ID,
		"execution_id": execution.ID,
		"approved":     false,
		"summary":      "needs tests",
	})
	require.True(t, resp.OK)

	got, err := h.repos.Tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusInProgress, got.Status)

	scratchpad, err := h.repos.Scratchpads.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Contains(t, scratchpad.Content, "--- REVIEW (REJECTED) ---\nneeds tests")

	gotExec, err := h.repos.Executions.Get(ctx, execution.ID)
	require.NoError(t, err)
	reviewResult, ok := gotExec.Metadata["review_result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, false, reviewResult["approved"])
}
