package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	when time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return &fixture{t: t, dir: dir, repo: repo, when: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fixture) sig() *object.Signature {
	f.when = f.when.Add(time.Minute)
	return &object.Signature{Name: "Dev", Email: "dev@example.com", When: f.when}
}

func (f *fixture) commit(msg string) plumbing.Hash {
	f.t.Helper()
	wt, err := f.repo.Worktree()
	require.NoError(f.t, err)
	require.NoError(f.t, os.WriteFile(filepath.Join(f.dir, "CHANGES"), []byte(msg), 0644))
	_, err = wt.Add("CHANGES")
	require.NoError(f.t, err)
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: f.sig()})
	require.NoError(f.t, err)
	return hash
}

func (f *fixture) tag(name string, hash plumbing.Hash, annotated bool) {
	f.t.Helper()
	var opts *git.CreateTagOptions
	if annotated {
		opts = &git.CreateTagOptions{Tagger: f.sig(), Message: "release " + name}
	}
	_, err := f.repo.CreateTag(name, hash, opts)
	require.NoError(f.t, err)
}

func TestCommitsBetween(t *testing.T) {
	f := newFixture(t)
	f.tag("v1.0.0", f.commit("Initial release"), false)
	f.commit("Add terminal tabs\n\nLonger body that is ignored.")
	f.commit("Fix crash on quit")
	f.tag("v1.1.0", f.commit("Bump version"), true)
	f.commit("Unreleased work")

	r := OpenLocal(f.dir, zap.NewNop())

	commits, err := r.CommitsBetween("v1.0.0", "v1.1.0")
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, "Bump version", commits[0].Subject)
	assert.Equal(t, "Add terminal tabs", commits[2].Subject)
	assert.Equal(t, "Dev", commits[0].Author)

	all, err := r.CommitsBetween("", "v1.0.0")
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = r.CommitsBetween("v0.9.0", "v1.1.0")
	assert.Error(t, err)
}

func TestVersionTags(t *testing.T) {
	f := newFixture(t)
	h := f.commit("one")
	f.tag("v1.10.0", h, false)
	f.tag("v1.2.0", h, true)
	f.tag("1.9.0", h, false)
	f.tag("nightly", h, false)

	r := OpenLocal(f.dir, zap.NewNop())
	tags, err := r.VersionTags()
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.2.0", "1.9.0", "v1.10.0"}, tags)

	prev, err := r.PreviousTag("v1.10.0")
	require.NoError(t, err)
	assert.Equal(t, "1.9.0", prev)

	prev, err = r.PreviousTag("v1.2.0")
	require.NoError(t, err)
	assert.Empty(t, prev)
}

func TestMarkdown(t *testing.T) {
	out := Markdown([]Commit{
		{Hash: "abcdef0123456789", Subject: "Fix crash"},
		{Hash: "1234567890abcdef", Subject: "Add tabs"},
	})
	assert.Equal(t, "- Fix crash (abcdef0)\n- Add tabs (1234567)", out)
	assert.Empty(t, Markdown(nil))
}
