// Package worktree materializes per-task working directories on disk and
// releases them, one git worktree per project repo.
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/kagan-sh/kagan-core/internal/logging"
)

// Result is the per-repo materialization produced by Create.
type Result struct {
	RepoID       string
	WorktreePath string
	BranchName   string
	TargetBranch string
}

// Manager creates and releases git worktrees under a single base
// directory, one subtree per (project, repo, task).
type Manager struct {
	basePath string
	mu       sync.Mutex
}

// NewManager constructs a Manager rooted at basePath (see
// internal/config for the platform-specific default).
func NewManager(basePath string) *Manager {
	return &Manager{basePath: basePath}
}

// RepoRef names the repo a worktree is created against.
type RepoRef struct {
	RepoID        string
	RepoPath      string // absolute path to the existing git repo
	RepoName      string
	DefaultBranch string
}

// Create materializes a worktree for one repo participating in a task's
// workspace. explicitTargetBranch and taskBaseBranch are resolved in
// priority order against repo.DefaultBranch; the first non-empty value
// wins.
func (m *Manager) Create(ctx context.Context, project, taskID, taskTitle string, repo RepoRef, explicitTargetBranch, taskBaseBranch string) (*Result, error) {
	targetBranch := firstNonEmpty(explicitTargetBranch, taskBaseBranch, repo.DefaultBranch)
	if targetBranch == "" {
		return nil, fmt.Errorf("worktree: no target branch known for repo %s (no explicit branch, task base branch, or repo default branch)", repo.RepoName)
	}

	if err := m.bootstrapIfEmpty(ctx, repo.RepoPath, targetBranch); err != nil {
		return nil, fmt.Errorf("bootstrap repo %s: %w", repo.RepoName, err)
	}

	slug := Slugify(taskTitle, taskID)
	leaf := filepath.Join(project, repo.RepoName, taskID, slug)
	worktreePath := filepath.Join(m.basePath, leaf)

	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
		return nil, fmt.Errorf("create worktree parent dir: %w", err)
	}

	branchName := slug
	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "-b", branchName, worktreePath, targetBranch)
	cmd.Dir = repo.RepoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("git worktree add: %w: %s", err, string(out))
	}

	logging.Info("worktree: created %s (branch %s off %s)", worktreePath, branchName, targetBranch)

	return &Result{
		RepoID:       repo.RepoID,
		WorktreePath: worktreePath,
		BranchName:   branchName,
		TargetBranch: targetBranch,
	}, nil
}

// bootstrapIfEmpty creates an initial commit in an empty repo so a base
// branch always exists, force-adding .gitignore so a global
// core.excludesfile cannot suppress it from the bootstrap commit.
func (m *Manager) bootstrapIfEmpty(ctx context.Context, repoPath, targetBranch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	revParse := exec.CommandContext(ctx, "git", "rev-parse", "--verify", targetBranch)
	revParse.Dir = repoPath
	if err := revParse.Run(); err == nil {
		return nil // branch already exists, nothing to bootstrap
	}

	headCheck := exec.CommandContext(ctx, "git", "rev-parse", "--verify", "HEAD")
	headCheck.Dir = repoPath
	if err := headCheck.Run(); err == nil {
		return nil // repo already has commits, just not this branch name
	}

	gitignorePath := filepath.Join(repoPath, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitignorePath, []byte("\n"), 0o644); err != nil {
			return fmt.Errorf("write bootstrap .gitignore: %w", err)
		}
	}

	for _, args := range [][]string{
		{"add", "-f", ".gitignore"},
		{"commit", "--allow-empty", "-m", "kagan: bootstrap initial commit"},
		{"branch", "-M", targetBranch},
	} {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = repoPath
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("git %v: %w: %s", args, err, string(out))
		}
	}
	return nil
}

// Release archives a worktree: the caller flips the Workspace row to
// ARCHIVED first, then this removes the worktree on disk, tolerating an
// already-removed path.
func (m *Manager) Release(ctx context.Context, repoPath, worktreePath string) error {
	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", worktreePath)
	cmd.Dir = repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		if _, statErr := os.Stat(worktreePath); os.IsNotExist(statErr) {
			return nil
		}
		return fmt.Errorf("git worktree remove: %w: %s", err, string(out))
	}
	return nil
}

// Diff returns the unified diff of worktreePath's working tree against
// targetBranch, for feeding into a review prompt. Uncommitted changes are
// included because `git diff <targetBranch>` compares the working tree
// with the tip of targetBranch (not the merge base), matching the teacher's
// porcelain-first approach to inspecting workspace changes.
func (m *Manager) Diff(ctx context.Context, worktreePath, targetBranch string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", targetBranch)
	cmd.Dir = worktreePath
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(out), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
