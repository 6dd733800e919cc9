// Package gitsource keeps local checkouts of git repositories holding notes.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does. Progress output from the remote is
// written to progress when it is not nil.
func Sync(ctx context.Context, repoURL, localPath string, progress io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("Cloning repository", "url", repoURL, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:      repoURL,
			Progress: progress,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
		logger.Info("Clone successful", "path", localPath)

	case err == nil:
		logger.Info("Pulling latest changes", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName: "origin",
			Progress:   progress,
		})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			logger.Info("Repository already up to date", "path", localPath)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
		logger.Info("Pull successful", "path", localPath)

	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	return nil
}

// IsRemote reports whether path names a remote repository rather than a
// local directory: an http(s) or ssh URL, or scp-like user@host:repo syntax.
func IsRemote(path string) bool {
	if u, err := url.Parse(path); err == nil {
		switch u.Scheme {
		case "http", "https", "ssh", "git":
			return u.Host != ""
		}
	}
	_, err := scpPath("", path)
	return err == nil
}

// LocalPath maps a repository URL to its checkout directory under baseDir,
// e.g. https://github.com/user/notes.git -> baseDir/github.com/user/notes.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || parsedURL.Host == "" {
		return scpPath(baseDir, repoURL)
	}
	switch parsedURL.Scheme {
	case "http", "https", "ssh", "git":
	default:
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(strings.Trim(parsedURL.Path, "/"), ".git")
	if sanitizedPath == "" {
		return "", fmt.Errorf("git URL has no repository path: %s", repoURL)
	}
	return filepath.Join(baseDir, parsedURL.Hostname(), sanitizedPath), nil
}

// scpPath handles git@host:user/repo.git.
func scpPath(baseDir, repoURL string) (string, error) {
	userHost, repoPath, ok := strings.Cut(repoURL, ":")
	if !ok || strings.Contains(repoPath, ":") {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	_, host, ok := strings.Cut(userHost, "@")
	if !ok || host == "" || strings.ContainsAny(host, "/\\") {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	repoPath = strings.TrimSuffix(strings.Trim(repoPath, "/"), ".git")
	if repoPath == "" {
		return "", fmt.Errorf("git URL has no repository path: %s", repoURL)
	}
	return filepath.Join(baseDir, host, repoPath), nil
}
