package workspace

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultGitHost is the code-hosting host that receives the access token.
const DefaultGitHost = "github.com"

// InjectToken returns repoURL with token placed in its user-info when the
// URL is https and its host matches host (case-insensitive). Any other URL,
// or an empty token, is returned unmodified.
func InjectToken(repoURL, token, host string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return repoURL
	}
	if host == "" {
		host = DefaultGitHost
	}
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil || !strings.EqualFold(u.Scheme, "https") {
		return repoURL
	}
	if !strings.EqualFold(u.Hostname(), host) {
		return repoURL
	}
	u.User = url.User(token)
	return u.String()
}

// RepoIdentity normalizes a repository URL into a stable cache identity:
// scheme and host lowercased, credentials dropped, trailing "/" and ".git"
// removed. "https://GitHub.com/acme/app.git" -> "github.com/acme/app".
func RepoIdentity(repoURL string) (string, error) {
	raw := strings.TrimSpace(repoURL)
	if raw == "" {
		return "", fmt.Errorf("workspace: repository url required")
	}
	if rest, ok := strings.CutPrefix(raw, "git@"); ok {
		// scp-like syntax: git@host:owner/repo.git
		host, path, found := strings.Cut(rest, ":")
		if !found {
			return "", fmt.Errorf("workspace: invalid repository url %q", raw)
		}
		return joinIdentity(strings.ToLower(host), path), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("workspace: invalid repository url: %w", err)
	}
	if u.Host == "" {
		// local paths (file clones, tests)
		return joinIdentity("", u.Path), nil
	}
	return joinIdentity(strings.ToLower(u.Host), u.Path), nil
}

func joinIdentity(host, path string) string {
	path = strings.TrimRight(path, "/")
	path = strings.TrimSuffix(path, ".git")
	path = strings.Trim(path, "/")
	if host == "" {
		return path
	}
	if path == "" {
		return host
	}
	return host + "/" + path
}
