// Package cli implements the ankibot commands.
package cli

import (
	"fmt"

	"github.com/conorfennell/ankibot/internal/ankiconnect"
	"github.com/conorfennell/ankibot/internal/config"
	"github.com/conorfennell/ankibot/internal/logger"
	"github.com/conorfennell/ankibot/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "ankibot",
	Short:         "Review Anki flashcards from Discord or the terminal",
	Long:          "ankibot runs Anki review sessions through the AnkiConnect add-on, one card at a time, from a Discord DM or a terminal.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	config.RegisterFlags(RootCmd.PersistentFlags())
}

// env is what every command starts from.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	anki   *ankiconnect.Client
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:    cfg,
		logger: log,
		anki:   ankiconnect.New(cfg.Anki.URL, cfg.Anki.Version, cfg.Anki.Timeout, log),
	}, nil
}

// openHistory opens the review history database, or returns nil when
// storage.path is empty.
func (e *env) openHistory() (*storage.DB, *storage.Recorder, error) {
	if e.cfg.Storage.Path == "" {
		return nil, nil, nil
	}
	db, err := storage.Open(e.cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open history %s: %w", e.cfg.Storage.Path, err)
	}
	return db, storage.NewRecorder(db, e.cfg.Review.Fields.Term, e.logger), nil
}

func deckArg(e *env, args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return e.cfg.Review.Deck
}
