package gitver

import "strings"

// RepoName extracts the repository name from a clone URL or path.
// Handles SSH (git@host:org/repo.git), HTTPS (https://host/org/repo.git)
// and local paths (/srv/git/repo).
func RepoName(remote string) string {
	remote = strings.TrimRight(remote, "/")
	remote = strings.TrimSuffix(remote, ".git")

	// SSH: git@host:org/repo
	if idx := strings.LastIndex(remote, ":"); idx != -1 && !strings.Contains(remote, "://") {
		remote = remote[idx+1:]
	}

	// Last path component
	if idx := strings.LastIndexAny(remote, `/\`); idx != -1 {
		return remote[idx+1:]
	}
	return remote
}

// DisplayURL converts a clone URL to HTTPS form for display.
// SSH remotes (git@host:org/repo.git) become https://host/org/repo.
// Everything else passes through with .git stripped.
func DisplayURL(remote string) string {
	remote = strings.TrimSuffix(remote, ".git")

	if strings.Contains(remote, "://") {
		return remote
	}

	// SSH: git@host:org/repo → https://host/org/repo
	if idx := strings.Index(remote, "@"); idx != -1 && strings.Contains(remote[idx:], ":") {
		rest := remote[idx+1:]
		rest = strings.Replace(rest, ":", "/", 1)
		return "https://" + rest
	}

	return remote
}
