package worktree

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

const maxSlugLength = 48

var (
	nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)
	hyphenRun   = regexp.MustCompile(`-+`)
)

// Slugify derives a short, filesystem-safe identifier from a task title:
// lowercase, non-alphanumerics collapsed to single hyphens, trimmed, and
// capped at maxSlugLength. A short hash of the task id is always
// appended, so two tasks with the same title never share a slug.
func Slugify(title, taskID string) string {
	slug := slugifyTitle(title)
	if slug == "" {
		slug = "task"
	}
	return disambiguate(slug, taskID)
}

func slugifyTitle(title string) string {
	lower := strings.ToLower(title)
	hyphenated := nonAlnumRun.ReplaceAllString(lower, "-")
	collapsed := hyphenRun.ReplaceAllString(hyphenated, "-")
	trimmed := strings.Trim(collapsed, "-")
	if len(trimmed) > maxSlugLength {
		trimmed = strings.Trim(trimmed[:maxSlugLength], "-")
	}
	return trimmed
}

// disambiguate appends a short hash of taskID to slug. Called
// unconditionally by Slugify: the base title alone carries no task
// identity, so without this two tasks titled identically would produce
// identical worktree paths. The suffix is deterministic per task id, so
// repeated calls for the same task always agree.
func disambiguate(slug, taskID string) string {
	sum := sha1.Sum([]byte(taskID))
	suffix := hex.EncodeToString(sum[:])[:6]
	base := slug
	if len(base) > maxSlugLength-7 {
		base = strings.Trim(base[:maxSlugLength-7], "-")
	}
	return base + "-" + suffix
}
