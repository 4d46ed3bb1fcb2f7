package utils

import (
	"os/exec"
	"strings"
)

// UnknownCommit is reported when the working directory is not a git checkout.
const UnknownCommit = "unknown"

// GitCommit returns the HEAD commit hash of the repository containing dir.
func GitCommit(dir string) string {
	if dir == "" {
		dir = "."
	}
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		return UnknownCommit
	}
	commit := strings.TrimSpace(string(out))
	if commit == "" {
		return UnknownCommit
	}
	return commit
}
