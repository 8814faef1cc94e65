// Package gitsource loads a configuration file from a git revision so that
// a run can be tied to the exact rule set it used.
//
// Local repositories are opened in place. Remote repositories are cloned
// into a cache directory on first use and fetched on later loads.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/WenyuChiou/WAGF-sub003/pkg/config"
)

// Snapshot is a configuration file read at a commit.
type Snapshot struct {
	Data    []byte
	Commit  string
	Author  string
	When    time.Time
	Message string
}

// Version returns the rule-set version stamped into traces.
func (s *Snapshot) Version() string {
	short := s.Commit
	if len(short) > 12 {
		short = short[:12]
	}
	return "git:" + short
}

// Fetch reads src.Path at src.Revision. cacheDir holds clones of remote
// repositories; an empty cacheDir uses the system temp directory.
func Fetch(ctx context.Context, src config.SourceConfig, cacheDir string) (*Snapshot, error) {
	if src.Repository == "" {
		return nil, errors.New("source repository cannot be empty")
	}
	rev := src.Revision
	if rev == "" {
		rev = config.DefaultSourceRevision
	}
	path := src.Path
	if path == "" {
		path = config.DefaultSourcePath
	}

	repo, err := open(ctx, src, cacheDir)
	if err != nil {
		return nil, err
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %q: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	file, err := commit.File(filepath.ToSlash(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s at %s: %w", path, hash.String()[:12], err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s contents: %w", path, err)
	}

	slog.Default().With("component", "config.gitsource").Info("configuration loaded from git",
		"repository", src.Repository,
		"revision", rev,
		"commit", commit.Hash.String(),
		"path", path,
	)

	return &Snapshot{
		Data:    []byte(contents),
		Commit:  commit.Hash.String(),
		Author:  commit.Author.Name,
		When:    commit.Author.When,
		Message: commit.Message,
	}, nil
}

// Load fetches the file and parses it. Unless the file pins
// rule_set_version, the commit becomes the rule-set version. Environment
// overrides are applied before validation.
func Load(ctx context.Context, src config.SourceConfig, cacheDir string) (*config.Config, *Snapshot, error) {
	snap, err := Fetch(ctx, src, cacheDir)
	if err != nil {
		return nil, nil, err
	}

	baseDir := ""
	if isLocal(src.Repository) {
		baseDir = filepath.Join(src.Repository, filepath.Dir(src.Path))
	}
	cfg, err := config.Parse(snap.Data, baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse configuration at %s: %w", snap.Version(), err)
	}
	if cfg.RuleSetVersion == config.ContentVersion(snap.Data) {
		cfg.RuleSetVersion = snap.Version()
	}
	config.ApplyEnvOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, snap, nil
}

func isLocal(repository string) bool {
	info, err := os.Stat(repository)
	return err == nil && info.IsDir()
}

func open(ctx context.Context, src config.SourceConfig, cacheDir string) (*gogit.Repository, error) {
	if isLocal(src.Repository) {
		repo, err := gogit.PlainOpenWithOptions(src.Repository, &gogit.PlainOpenOptions{DetectDotGit: true})
		if err != nil {
			return nil, fmt.Errorf("failed to open repository %s: %w", src.Repository, err)
		}
		return repo, nil
	}

	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "wagf-config")
	}
	local := filepath.Join(cacheDir, sanitize(src.Repository))

	var auth transport.AuthMethod
	if src.Token != "" {
		auth = &http.BasicAuth{Username: "git", Password: src.Token}
	}

	if _, err := os.Stat(filepath.Join(local, ".git")); err == nil {
		repo, err := gogit.PlainOpen(local)
		if err != nil {
			return nil, fmt.Errorf("failed to open cached clone: %w", err)
		}
		err = repo.FetchContext(ctx, &gogit.FetchOptions{Auth: auth, Tags: gogit.AllTags})
		if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
			return nil, fmt.Errorf("failed to fetch %s: %w", src.Repository, err)
		}
		return repo, nil
	}

	if err := os.MkdirAll(local, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clone directory: %w", err)
	}
	repo, err := gogit.PlainCloneContext(ctx, local, false, &gogit.CloneOptions{
		URL:  src.Repository,
		Auth: auth,
		Tags: gogit.AllTags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", src.Repository, err)
	}
	return repo, nil
}

// sanitize turns a repository URL into a directory name.
func sanitize(url string) string {
	out := make([]rune, 0, len(url))
	for _, r := range url {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
