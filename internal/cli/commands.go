// Package cli wires the engine into the microdot command tree.
package cli

import (
	"fmt"
	"time"

	"github.com/arthur-debert/microdot/internal/version"
	"github.com/arthur-debert/microdot/pkg/config"
	"github.com/arthur-debert/microdot/pkg/conflict"
	"github.com/arthur-debert/microdot/pkg/crypto"
	"github.com/arthur-debert/microdot/pkg/filesystem"
	"github.com/arthur-debert/microdot/pkg/flock"
	"github.com/arthur-debert/microdot/pkg/gitignore"
	"github.com/arthur-debert/microdot/pkg/identity"
	"github.com/arthur-debert/microdot/pkg/logging"
	"github.com/arthur-debert/microdot/pkg/merge"
	"github.com/arthur-debert/microdot/pkg/paths"
	"github.com/arthur-debert/microdot/pkg/status"
	"github.com/arthur-debert/microdot/pkg/store"
	"github.com/arthur-debert/microdot/pkg/syncer"
	"github.com/arthur-debert/microdot/pkg/vcs"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	var verbosity int

	rootCmd := &cobra.Command{
		Use:   "microdot",
		Short: "A dotfile synchronizer built on content-addressed versions",
		Long: `microdot keeps dotfiles identical across machines through a shared git
store. Every version of a file is stored under a content-addressed
filename, so concurrent edits never overwrite each other: both versions
survive and conflicts are resolved explicitly.`,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newConflictsCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newGenKeyCmd())

	return rootCmd
}

// engine bundles the wired components a command operates on.
type engine struct {
	cfg        config.Config
	channelDir string
	syncer     *syncer.Syncer
	conflicts  *conflict.Manager
}

// newEngine resolves configuration and wires the full stack. A
// positive interval overrides the configured watch interval.
func newEngine(interval time.Duration) (*engine, error) {
	p, err := paths.New("")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(p)
	if err != nil {
		return nil, err
	}
	// config may point the store somewhere else; the config dir itself
	// never depends on the store root, so reloading is not needed
	if cfg.Core.DotfilesRoot != p.DotfilesRoot() {
		if p, err = paths.New(cfg.Core.DotfilesRoot); err != nil {
			return nil, err
		}
	}

	fsys := filesystem.NewOS()

	var cipher crypto.Cipher
	if cfg.Encryption.Key != "" {
		cipher, err = crypto.NewCipher(cfg.Encryption.Key)
		if err != nil {
			return nil, err
		}
	}

	if interval <= 0 {
		interval = cfg.Sync.Interval()
	}

	mat := store.NewMaterializer(fsys, cipher, crypto.NewHasher())
	list := status.New(fsys, p.StatusListPath())
	clock := clockwork.NewRealClock()
	mgr := conflict.NewManager(fsys, mat, list, &merge.EditorMerger{}, clock, p.TmpDir())
	channelDir := p.ChannelDir(cfg.Core.Channel)

	var adapter vcs.Adapter
	if cfg.Sync.UseGit {
		adapter = vcs.NewShellGit(p.DotfilesRoot())
	}

	s := syncer.New(syncer.Params{
		FS:           fsys,
		Materializer: mat,
		ChannelDir:   channelDir,
		StatusList:   list,
		Marker:       mgr,
		VCS:          adapter,
		Lock:         flock.New(p.LockPath()),
		Gitignore:    gitignore.New(fsys, p.GitignorePath()),
		Clock:        clock,
		Interval:     interval,
		EncryptNew:   cfg.Encryption.EncryptNew,
	})

	return &engine{cfg: cfg, channelDir: channelDir, syncer: s, conflicts: mgr}, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("microdot version %s\n", version.Version)
			cmd.Printf("  commit: %s\n", version.Commit)
			cmd.Printf("  built:  %s\n", version.Date)
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass",
		Long: `Run a single sync pass: pull the shared store, reconcile every
dotfile against the status list, then push the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(0)
			if err != nil {
				return err
			}
			sum, err := eng.syncer.Sync(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("examined %d, changed %d\n", sum.Examined, sum.Mutations())
			for _, name := range sum.Conflicts {
				cmd.Printf("conflict: %s (run 'microdot conflicts' to inspect)\n", name)
			}
			for _, e := range sum.Errors {
				cmd.PrintErrf("error: %v\n", e)
			}
			if len(sum.Errors) > 0 {
				return fmt.Errorf("%d items failed to reconcile", len(sum.Errors))
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync continuously until interrupted",
		Long: `Run sync passes on an interval, waking early when the channel
directory changes. Stops cleanly on SIGINT; a running pass always
finishes first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(interval)
			if err != nil {
				return err
			}
			return eng.syncer.Watch(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Override the configured pass interval")
	return cmd
}

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List open conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(0)
			if err != nil {
				return err
			}
			open, err := eng.conflicts.List(eng.channelDir)
			if err != nil {
				return err
			}
			if len(open) == 0 {
				cmd.Println("no open conflicts")
				return nil
			}
			for _, e := range open {
				encoded, err := identity.Encode(e.ID)
				if err != nil {
					return err
				}
				cmd.Printf("%s\t%s\t%s\n", e.ID.Name, e.ID.Timestamp.Format(time.RFC3339), encoded)
			}
			return nil
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <conflict-file>",
		Short: "Merge a conflict-marked version with its canonical sibling",
		Long: `Resolve an open conflict. The argument is the conflict-marked
filename as printed by 'microdot conflicts'. Both versions are opened,
merged in $EDITOR, and the result replaces the pair as a new version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(0)
			if err != nil {
				return err
			}
			if err := eng.conflicts.Resolve(eng.channelDir, args[0]); err != nil {
				return err
			}
			cmd.Printf("resolved %s\n", identity.LogicalName(args[0]))
			return nil
		},
	}
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a new store encryption key",
		Long: `Generate a random AES-256 key. Put it in config.toml under
[encryption] key, on every machine sharing the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			cmd.Println(key)
			return nil
		},
	}
}
