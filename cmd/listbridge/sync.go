package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/vdavid/listbridge/internal/checkpoint"
	"github.com/vdavid/listbridge/internal/config"
	"github.com/vdavid/listbridge/internal/db"
	"github.com/vdavid/listbridge/internal/display"
	"github.com/vdavid/listbridge/internal/forge"
	"github.com/vdavid/listbridge/internal/git"
	"github.com/vdavid/listbridge/internal/mirror"
	"github.com/vdavid/listbridge/internal/notes"
)

var prFilterFlag string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Post new mailing-list messages to their pull requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		prFilter, err := buildPRFilter(prFilterFlag)
		if err != nil {
			return err
		}

		cfg, err := config.NewConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		engine := newEngine(ctx, cfg, store)
		result, err := engine.Run(ctx, prFilter)
		if err != nil {
			display.ErrorMsg("sync failed: %v", err)
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), display.SyncSummary(result.Advanced, result.From, result.To,
			result.Dispatched, result.Skipped, result.Failed))
		return nil
	},
}

// buildPRFilter turns the --pr-filter pattern into a predicate. An empty pattern means no filter.
func buildPRFilter(pattern string) (func(string) bool, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid --pr-filter: %w", err)
	}
	return re.MatchString, nil
}

// openStore opens the configured note store and returns a function that closes it.
func openStore(ctx context.Context, cfg *config.Config) (notes.Store, func(), error) {
	switch cfg.NotesBackend {
	case config.NotesBackendSQLite:
		store, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Printf("Warning: failed to close %s: %v", cfg.SQLitePath, err)
			}
		}, nil
	default:
		pool, err := db.NewConnection(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db.NewNotesStore(pool), func() { db.CloseConnection(pool) }, nil
	}
}

func newEngine(ctx context.Context, cfg *config.Config, store notes.Store) *mirror.Engine {
	archive := git.Open(cfg.MailArchiveGitDir)

	manager := &checkpoint.Manager{
		Mirror:    archive,
		Bootstrap: cfg.BootstrapCommit,
		Branch:    cfg.MailArchiveBranch,
	}
	if cfg.PublicInboxDir != "" {
		manager.PublicInbox = git.Open(cfg.PublicInboxDir)
	}

	var paths forge.PathResolver
	if cfg.ForgeGitDir != "" {
		paths = git.Open(cfg.ForgeGitDir)
	}

	return &mirror.Engine{
		Mirror:     archive,
		Checkpoint: manager,
		Store:      store,
		Forge:      forge.NewGitHubClient(ctx, cfg.GitHubToken, cfg.GitHubAPIURL, cfg.GitHubGraphQLURL, paths),
		Attribution: mirror.Attribution{
			ListName:       cfg.ListName,
			ArchiveURL:     cfg.ArchiveURL,
			ReplyToThisURL: cfg.ReplyToThisURL,
		},
		Branch:   cfg.MailArchiveBranch,
		StateKey: cfg.StateKey,
	}
}

func init() {
	syncCmd.Flags().StringVar(&prFilterFlag, "pr-filter", "", "Only post to pull requests whose URL matches this regular expression")
	rootCmd.AddCommand(syncCmd)
}
