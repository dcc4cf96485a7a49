// Package config resolves the core daemon's runtime configuration from
// environment variables and explicit CLI-supplied paths. Config file
// loading, parsing, and XDG resolution are handled by the launcher that
// starts the core, not by the core itself.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds the core daemon's resolved runtime settings.
type Config struct {
	DataDir           string
	ConfigDir         string
	CacheDir          string
	WorktreeBase      string
	CoreRuntimeDir    string
	Debug             bool
	DBPath            string
	MaxConcurrentJobs int
	MaxRuns           int
	AutoReviewEnabled bool
	PlannerAutoApprove bool
	GitIdentity        string
}

// Load resolves configuration from environment variables. dbPathOverride
// and configPathOverride, when non-empty, come from CLI flags
// (--db-path, --config-path) and win over everything else.
func Load(dbPathOverride, configPathOverride string) *Config {
	v := viper.New()
	v.SetEnvPrefix("KAGAN")
	v.AutomaticEnv()

	_ = v.BindEnv("data_dir", "KAGAN_DATA_DIR")
	_ = v.BindEnv("config_dir", "KAGAN_CONFIG_DIR")
	_ = v.BindEnv("cache_dir", "KAGAN_CACHE_DIR")
	_ = v.BindEnv("worktree_base", "KAGAN_WORKTREE_BASE")
	_ = v.BindEnv("core_runtime_dir", "KAGAN_CORE_RUNTIME_DIR")
	_ = v.BindEnv("debug", "KAGAN_DEBUG")

	v.SetDefault("max_concurrent_jobs", 3)
	v.SetDefault("max_runs", 25)
	v.SetDefault("auto_review_enabled", true)
	v.SetDefault("planner_auto_approve", false)
	v.SetDefault("git_identity", "")

	home, _ := os.UserHomeDir()
	defaultBase := filepath.Join(home, ".kagan")

	cfg := &Config{
		DataDir:            firstNonEmpty(v.GetString("data_dir"), defaultBase),
		ConfigDir:          firstNonEmpty(v.GetString("config_dir"), defaultBase),
		CacheDir:           firstNonEmpty(v.GetString("cache_dir"), filepath.Join(defaultBase, "cache")),
		WorktreeBase:       firstNonEmpty(v.GetString("worktree_base"), defaultWorktreeBase()),
		CoreRuntimeDir:     firstNonEmpty(v.GetString("core_runtime_dir"), filepath.Join(defaultBase, "run")),
		Debug:              v.GetBool("debug"),
		MaxConcurrentJobs:  v.GetInt("max_concurrent_jobs"),
		MaxRuns:            v.GetInt("max_runs"),
		AutoReviewEnabled:  v.GetBool("auto_review_enabled"),
		PlannerAutoApprove: v.GetBool("planner_auto_approve"),
		GitIdentity:        v.GetString("git_identity"),
	}

	if configPathOverride != "" {
		cfg.ConfigDir = configPathOverride
	}
	cfg.DBPath = firstNonEmpty(dbPathOverride, filepath.Join(cfg.DataDir, "kagan.db"))

	return cfg
}

func defaultWorktreeBase() string {
	if runtime.GOOS == "linux" {
		return "/var/tmp/kagan"
	}
	return filepath.Join(os.TempDir(), "kagan")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// EndpointPath is the path to the IPC endpoint descriptor file.
func (c *Config) EndpointPath() string { return filepath.Join(c.CoreRuntimeDir, "endpoint.json") }

// TokenPath is the path to the bearer token file.
func (c *Config) TokenPath() string { return filepath.Join(c.CoreRuntimeDir, "token") }

// LeasePath is the path to the core lease descriptor file.
func (c *Config) LeasePath() string { return filepath.Join(c.CoreRuntimeDir, "core.lease.json") }

// InstanceLockPath is the path to the OS-level core instance lock file.
func (c *Config) InstanceLockPath() string {
	return filepath.Join(c.CoreRuntimeDir, "core.instance.lock")
}
