package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@kagan.dev")
	runGit(t, dir, "config", "user.name", "kagan test")
	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.CommandContext(context.Background(), "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, string(out))
}

func TestCreateBootstrapsEmptyRepoAndAddsWorktree(t *testing.T) {
	repoPath := initTestRepo(t)
	base := t.TempDir()
	m := NewManager(base)

	ref := RepoRef{RepoID: "r1", RepoPath: repoPath, RepoName: "svc", DefaultBranch: "main"}
	result, err := m.Create(context.Background(), "proj1", "task-1", "Fix login", ref, "", "")
	require.NoError(t, err)
	require.DirExists(t, result.WorktreePath)
	require.Equal(t, "main", result.TargetBranch)
	require.Contains(t, result.WorktreePath, filepath.Join("proj1", "svc", "task-1"))
}

func TestCreateFailsWithoutAnyKnownBranch(t *testing.T) {
	repoPath := initTestRepo(t)
	base := t.TempDir()
	m := NewManager(base)

	ref := RepoRef{RepoID: "r1", RepoPath: repoPath, RepoName: "svc"}
	_, err := m.Create(context.Background(), "proj1", "task-1", "Fix login", ref, "", "")
	require.Error(t, err)
}

func TestReleaseToleratesAlreadyRemovedWorktree(t *testing.T) {
	repoPath := initTestRepo(t)
	base := t.TempDir()
	m := NewManager(base)

	ref := RepoRef{RepoID: "r1", RepoPath: repoPath, RepoName: "svc", DefaultBranch: "main"}
	result, err := m.Create(context.Background(), "proj1", "task-1", "Fix login", ref, "", "")
	require.NoError(t, err)

	require.NoError(t, m.Release(context.Background(), repoPath, result.WorktreePath))
	require.NoError(t, m.Release(context.Background(), repoPath, result.WorktreePath))
	require.NoDirExists(t, result.WorktreePath)
}

func TestDiffReportsUncommittedChanges(t *testing.T) {
	repoPath := initTestRepo(t)
	base := t.TempDir()
	m := NewManager(base)

	ref := RepoRef{RepoID: "r1", RepoPath: repoPath, RepoName: "svc", DefaultBranch: "main"}
	result, err := m.Create(context.Background(), "proj1", "task-1", "Fix login", ref, "", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(result.WorktreePath, "file.txt"), []byte("hello\n"), 0o644))
	runGit(t, result.WorktreePath, "add", "file.txt")

	diff, err := m.Diff(context.Background(), result.WorktreePath, result.TargetBranch)
	require.NoError(t, err)
	require.Contains(t, diff, "file.txt")
}
