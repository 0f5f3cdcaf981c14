package commands

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/codeagentswarm/swarm-backend/internal/model"
	"github.com/codeagentswarm/swarm-backend/internal/update"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Manage published releases",
}

var releasePublishCmd = &cobra.Command{
	Use:   "publish <file>",
	Short: "Upload an installer and register it as a release",
	Long: `Upload an installer into the release bucket and record it as the newest
release for its platform and architecture.

The file's SHA-512 digest and size are computed while uploading. Unless
--inactive is given the release is served to update checks immediately.

Examples:
  swarmctl release publish --platform darwin --arch arm64 --version 2.1.0 CodeAgentSwarm-2.1.0-arm64.dmg
  swarmctl release publish --platform win32 --arch x64 --version 2.2.0-beta.1 --prerelease Setup.exe`,
	Args: cobra.ExactArgs(1),
	RunE: runReleasePublish,
}

var releaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List releases, newest first",
	Args:  cobra.NoArgs,
	RunE:  runReleaseList,
}

var releaseActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Serve a release to update checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], true)
	},
}

var releaseDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Withdraw a release from update checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], false)
	},
}

var releaseDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a release and its installer",
	Args:  cobra.ExactArgs(1),
	RunE:  runReleaseDelete,
}

type publishOptions struct {
	Platform   string
	Arch       string
	Version    string
	Notes      string
	NotesFile  string
	Prerelease bool
	Inactive   bool
}

var publishOpts publishOptions

func init() {
	f := releasePublishCmd.Flags()
	f.StringVar(&publishOpts.Platform, "platform", "", "Target platform (darwin, win32, linux)")
	f.StringVar(&publishOpts.Arch, "arch", "", "Target architecture (x64, arm64, ia32, ...)")
	f.StringVar(&publishOpts.Version, "version", "", "Semantic version of the build")
	f.StringVar(&publishOpts.Notes, "notes", "", "Release notes")
	f.StringVar(&publishOpts.NotesFile, "notes-file", "", "Read release notes from a file")
	f.BoolVar(&publishOpts.Prerelease, "prerelease", false, "Mark as prerelease (never offered as an update)")
	f.BoolVar(&publishOpts.Inactive, "inactive", false, "Register without serving it")
	_ = releasePublishCmd.MarkFlagRequired("platform")
	_ = releasePublishCmd.MarkFlagRequired("arch")
	_ = releasePublishCmd.MarkFlagRequired("version")

	releaseCmd.AddCommand(releasePublishCmd, releaseListCmd, releaseActivateCmd, releaseDeactivateCmd, releaseDeleteCmd)
	rootCmd.AddCommand(releaseCmd)
}

func runReleasePublish(cmd *cobra.Command, args []string) error {
	rel, err := publishRelease(cmd.Context(), current, args[0], publishOpts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published release %d: %s %s/%s\n  url:    %s\n  size:   %d\n  sha512: %s\n",
		rel.ID, rel.Version, rel.Platform, rel.Arch, rel.FileURL, rel.FileSize, rel.SHA512)
	return nil
}

// releaseKey is where an installer lives inside the release bucket
func releaseKey(platform, arch, version, fileName string) string {
	return path.Join(platform, arch, version, fileName)
}

func publishRelease(ctx context.Context, a *app, file string, opts publishOptions) (*model.Release, error) {
	if err := update.ValidateVersion(opts.Version); err != nil {
		return nil, err
	}
	platform := update.NormalizePlatform(opts.Platform)
	arch := update.NormalizeArch(opts.Arch)
	if platform == "" || arch == "" {
		return nil, errors.New("platform and arch are required")
	}

	notes := opts.Notes
	if opts.NotesFile != "" {
		data, err := os.ReadFile(opts.NotesFile)
		if err != nil {
			return nil, fmt.Errorf("read notes: %w", err)
		}
		notes = string(data)
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open installer: %w", err)
	}
	defer f.Close()

	fileName := filepath.Base(file)
	key := releaseKey(platform, arch, opts.Version, fileName)
	bucket := a.cfg.Blob.ReleaseBucket

	h := sha512.New()
	size, err := a.blobs.Put(ctx, bucket, key, io.TeeReader(f, h))
	if err != nil {
		return nil, err
	}

	rel := &model.Release{
		Version:      opts.Version,
		Platform:     platform,
		Arch:         arch,
		FileName:     fileName,
		FileURL:      a.blobs.PublicURL(bucket, key),
		FileSize:     size,
		SHA512:       hex.EncodeToString(h.Sum(nil)),
		ReleaseNotes: notes,
		IsPrerelease: opts.Prerelease,
		IsActive:     !opts.Inactive,
	}
	if err := a.store.CreateRelease(ctx, rel); err != nil {
		_ = a.blobs.Delete(ctx, bucket, key)
		return nil, err
	}

	a.log.Info("release published",
		zap.Int64("id", rel.ID),
		zap.String("version", rel.Version),
		zap.String("platform", platform),
		zap.String("arch", arch),
		zap.Int64("size", size),
	)
	return rel, nil
}

func runReleaseList(cmd *cobra.Command, args []string) error {
	releases, err := current.store.ListReleases(cmd.Context())
	if err != nil {
		return err
	}
	if len(releases) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No releases.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tPLATFORM\tARCH\tFILE\tSIZE\tFLAGS\tCREATED")
	for _, r := range releases {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Version, r.Platform, r.Arch, r.FileName, r.FileSize,
			releaseFlags(r), r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func releaseFlags(r *model.Release) string {
	flags := "active"
	if !r.IsActive {
		flags = "inactive"
	}
	if r.IsPrerelease {
		flags += ",prerelease"
	}
	return flags
}

func parseReleaseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid release id %q", arg)
	}
	return id, nil
}

func setActive(cmd *cobra.Command, arg string, active bool) error {
	id, err := parseReleaseID(arg)
	if err != nil {
		return err
	}
	if err := current.store.SetReleaseActive(cmd.Context(), id, active); err != nil {
		return err
	}
	state := "deactivated"
	if active {
		state = "activated"
	}
	current.log.Info("release "+state, zap.Int64("id", id))
	fmt.Fprintf(cmd.OutOrStdout(), "Release %d %s\n", id, state)
	return nil
}

func runReleaseDelete(cmd *cobra.Command, args []string) error {
	id, err := parseReleaseID(args[0])
	if err != nil {
		return err
	}
	if err := deleteRelease(cmd.Context(), current, id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Release %d deleted\n", id)
	return nil
}

func deleteRelease(ctx context.Context, a *app, id int64) error {
	rel, err := a.store.GetRelease(ctx, id)
	if err != nil {
		return err
	}
	if rel == nil {
		return fmt.Errorf("release not found: %d", id)
	}
	if err := a.store.DeleteRelease(ctx, id); err != nil {
		return err
	}
	key := releaseKey(rel.Platform, rel.Arch, rel.Version, rel.FileName)
	if err := a.blobs.Delete(ctx, a.cfg.Blob.ReleaseBucket, key); err != nil {
		a.log.Warn("failed to delete installer", zap.String("key", key), zap.Error(err))
	}
	a.log.Info("release deleted", zap.Int64("id", id), zap.String("version", rel.Version))
	return nil
}
