package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/codeagentswarm/swarm-backend/internal/changelog"
	"github.com/codeagentswarm/swarm-backend/internal/model"
	"github.com/codeagentswarm/swarm-backend/pkg/git"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Manage per-version changelogs",
}

var changelogAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store the changelog of a version",
	Long: `Store (or replace) the changelog text of one version.

Examples:
  swarmctl changelog add --version 2.1.0 --previous 2.0.3 --text "- Faster startup"
  swarmctl changelog add --version 2.1.0 --file CHANGES.md`,
	Args: cobra.NoArgs,
	RunE: runChangelogAdd,
}

var changelogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Build a changelog from the commits between two tags",
	Long: `Build the changelog of a tagged version from git history.

Every non-merge commit reachable from --tag but not from the previous version
tag becomes one bullet. The previous tag is found among the repository's
semantic version tags unless --from is given.

The repository is either a local working copy (--repo) or a remote that is
cloned, or pulled, under the storage directory (--url).

Examples:
  swarmctl changelog import --repo ../desktop --tag v2.1.0
  swarmctl changelog import --url https://github.com/codeagentswarm/desktop.git --tag v2.1.0 --from v2.0.0`,
	Args: cobra.NoArgs,
	RunE: runChangelogImport,
}

type addOptions struct {
	Version  string
	Previous string
	Text     string
	File     string
}

type importOptions struct {
	Repo string
	URL  string
	Tag  string
	From string
}

var (
	addOpts    addOptions
	importOpts importOptions
)

func init() {
	af := changelogAddCmd.Flags()
	af.StringVar(&addOpts.Version, "version", "", "Version the changelog belongs to")
	af.StringVar(&addOpts.Previous, "previous", "", "Version this one follows")
	af.StringVar(&addOpts.Text, "text", "", "Changelog text")
	af.StringVar(&addOpts.File, "file", "", "Read the changelog text from a file")
	_ = changelogAddCmd.MarkFlagRequired("version")
	changelogAddCmd.MarkFlagsMutuallyExclusive("text", "file")

	inf := changelogImportCmd.Flags()
	inf.StringVar(&importOpts.Repo, "repo", "", "Path of a local working copy")
	inf.StringVar(&importOpts.URL, "url", "", "Remote to clone or pull")
	inf.StringVar(&importOpts.Tag, "tag", "", "Tag of the version to describe")
	inf.StringVar(&importOpts.From, "from", "", "Tag to start after (default: previous version tag)")
	_ = changelogImportCmd.MarkFlagRequired("tag")
	changelogImportCmd.MarkFlagsMutuallyExclusive("repo", "url")
	changelogImportCmd.MarkFlagsOneRequired("repo", "url")

	changelogCmd.AddCommand(changelogAddCmd, changelogImportCmd)
	rootCmd.AddCommand(changelogCmd)
}

func runChangelogAdd(cmd *cobra.Command, args []string) error {
	c, err := addChangelog(cmd.Context(), current, addOpts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved changelog for %s\n", c.Version)
	return nil
}

func addChangelog(ctx context.Context, a *app, opts addOptions) (*model.Changelog, error) {
	text := opts.Text
	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("read changelog: %w", err)
		}
		text = string(data)
	}

	c := &model.Changelog{
		Version:         opts.Version,
		PreviousVersion: opts.Previous,
		Changelog:       text,
	}
	if err := changelog.NewService(a.store).Save(ctx, c); err != nil {
		return nil, err
	}
	a.log.Info("changelog saved", zap.String("version", c.Version))
	return c, nil
}

func runChangelogImport(cmd *cobra.Command, args []string) error {
	c, err := importChangelog(cmd.Context(), current, importOpts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d commits into the changelog for %s", c.CommitCount, c.Version)
	if c.PreviousVersion != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (since %s)", c.PreviousVersion)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func importChangelog(ctx context.Context, a *app, opts importOptions) (*model.Changelog, error) {
	var repo *git.Repo
	if opts.URL != "" {
		name := strings.TrimSuffix(opts.URL[strings.LastIndex(opts.URL, "/")+1:], ".git")
		if name == "" {
			return nil, fmt.Errorf("cannot derive a repository name from %q", opts.URL)
		}
		repo = git.NewRepo(name, opts.URL, a.cfg.Storage.Path, a.log)
		if err := repo.PullOrClone(); err != nil {
			return nil, err
		}
	} else {
		repo = git.OpenLocal(opts.Repo, a.log)
	}

	from := opts.From
	if from == "" {
		prev, err := repo.PreviousTag(opts.Tag)
		if err != nil {
			return nil, err
		}
		from = prev
	}

	commits, err := repo.CommitsBetween(from, opts.Tag)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, errors.New("no commits between the tags")
	}

	c := &model.Changelog{
		Version:         strings.TrimPrefix(opts.Tag, "v"),
		PreviousVersion: strings.TrimPrefix(from, "v"),
		Changelog:       git.Markdown(commits),
		CommitCount:     len(commits),
	}
	if err := changelog.NewService(a.store).Save(ctx, c); err != nil {
		return nil, err
	}
	a.log.Info("changelog imported",
		zap.String("repo", repo.Name),
		zap.String("version", c.Version),
		zap.String("previous", c.PreviousVersion),
		zap.Int("commits", c.CommitCount),
	)
	return c, nil
}
