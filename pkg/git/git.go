package git

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

// Repo is a local clone of the desktop app repository
type Repo struct {
	Name   string
	URL    string
	Path   string
	Logger *zap.Logger
}

// Commit is the part of a commit that goes into release notes
type Commit struct {
	Hash    string
	Subject string
	Author  string
}

// NewRepo creates a Repo cloned under basePath/repos/name
func NewRepo(name, url, basePath string, logger *zap.Logger) *Repo {
	return &Repo{
		Name:   name,
		URL:    url,
		Path:   filepath.Join(basePath, "repos", name),
		Logger: logger,
	}
}

// OpenLocal wraps an existing working copy without cloning
func OpenLocal(path string, logger *zap.Logger) *Repo {
	return &Repo{Name: filepath.Base(path), Path: path, Logger: logger}
}

// PullOrClone pulls or clones the repository and fetches its tags
func (r *Repo) PullOrClone() error {
	repo, err := r.openOrClone()
	if err != nil {
		return fmt.Errorf("failed to open/clone repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	err = worktree.Pull(&git.PullOptions{Force: true})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("failed to pull: %w", err)
	}

	err = repo.Fetch(&git.FetchOptions{
		RemoteName: "origin",
		Tags:       git.AllTags,
		Force:      true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("failed to fetch: %w", err)
	}

	return nil
}

// openOrClone opens an existing repository or clones it if it doesn't exist
func (r *Repo) openOrClone() (*git.Repository, error) {
	repo, err := git.PlainOpen(r.Path)
	if err == nil {
		return repo, nil
	}

	if err == git.ErrRepositoryNotExists && r.URL != "" {
		r.Logger.Info("cloning repository",
			zap.String("name", r.Name),
			zap.String("url", r.URL),
		)

		if err := os.MkdirAll(r.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		repo, err = git.PlainClone(r.Path, false, &git.CloneOptions{URL: r.URL})
		if err != nil {
			return nil, fmt.Errorf("failed to clone: %w", err)
		}

		return repo, nil
	}

	return nil, err
}

// VersionTags returns the semantic version tags of the repository, lowest first
func (r *Repo) VersionTags() ([]string, error) {
	repo, err := git.PlainOpen(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repo: %w", err)
	}

	tags, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}

	var versions []string
	tags.ForEach(func(t *plumbing.Reference) error {
		name := t.Name().Short()
		if semver.IsValid(canonicalTag(name)) {
			versions = append(versions, name)
		}
		return nil
	})

	sort.Slice(versions, func(i, j int) bool {
		return semver.Compare(canonicalTag(versions[i]), canonicalTag(versions[j])) < 0
	})
	return versions, nil
}

// PreviousTag returns the version tag released right before tag, "" if none
func (r *Repo) PreviousTag(tag string) (string, error) {
	versions, err := r.VersionTags()
	if err != nil {
		return "", err
	}
	prev := ""
	for _, v := range versions {
		if semver.Compare(canonicalTag(v), canonicalTag(tag)) >= 0 {
			break
		}
		prev = v
	}
	return prev, nil
}

// CommitsBetween lists the non-merge commits reachable from to but not from
// from, newest first. An empty from walks the whole history of to.
func (r *Repo) CommitsBetween(from, to string) ([]Commit, error) {
	repo, err := git.PlainOpen(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repo: %w", err)
	}

	head, err := resolveCommit(repo, to)
	if err != nil {
		return nil, err
	}

	exclude := map[plumbing.Hash]bool{}
	if from != "" {
		base, err := resolveCommit(repo, from)
		if err != nil {
			return nil, err
		}
		baseIter, err := repo.Log(&git.LogOptions{From: base.Hash})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", from, err)
		}
		baseIter.ForEach(func(c *object.Commit) error {
			exclude[c.Hash] = true
			return nil
		})
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", to, err)
	}

	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if exclude[c.Hash] {
			return nil
		}
		if c.NumParents() > 1 {
			return nil
		}
		subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Subject: strings.TrimSpace(subject),
			Author:  c.Author.Name,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read commits: %w", err)
	}
	return commits, nil
}

// Markdown renders commits as a bullet list for release notes
func Markdown(commits []Commit) string {
	var b strings.Builder
	for i, c := range commits {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s (%s)", c.Subject, c.Hash[:7])
	}
	return b.String()
}

// resolveCommit accepts a tag (lightweight or annotated), branch or hash
func resolveCommit(repo *git.Repository, rev string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err == nil {
		return commit, nil
	}
	tag, tagErr := repo.TagObject(*hash)
	if tagErr != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", rev, err)
	}
	return tag.Commit()
}

func canonicalTag(tag string) string {
	if !strings.HasPrefix(tag, "v") {
		return "v" + tag
	}
	return tag
}
