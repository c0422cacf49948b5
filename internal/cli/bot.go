package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/ankibot/internal/discord"
	"github.com/conorfennell/ankibot/internal/review"
	"github.com/conorfennell/ankibot/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Discord bot and the review history API",
		Args:  cobra.NoArgs,
		RunE:  runBot,
	}

	RootCmd.AddCommand(cmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	if e.cfg.Discord.Token == "" {
		return errors.New("discord.token is required (set ANKIBOT_DISCORD_TOKEN)")
	}

	db, recorder, err := e.openHistory()
	if err != nil {
		return err
	}
	var observers []review.Observer
	if db != nil {
		defer db.Close()
		observers = append(observers, recorder)
	}

	mode := e.cfg.Review.Mode
	if e.cfg.Discord.Direct {
		mode = review.ModeDirect
	}
	bot, err := discord.New(e.cfg.Discord.Token, e.anki, discord.Settings{
		Prefix:  e.cfg.Discord.Prefix,
		Deck:    e.cfg.Review.Deck,
		Mode:    mode,
		Timeout: e.cfg.Review.Timeout,
		Fields:  e.cfg.FieldMap(),
	}, e.logger, observers...)
	if err != nil {
		return err
	}
	if err := bot.Open(); err != nil {
		return err
	}
	e.logger.Info("bot running", zap.String("deck", e.cfg.Review.Deck), zap.String("mode", mode))

	var srv *http.Server
	switch {
	case e.cfg.Web.Addr == "":
	case db == nil:
		e.logger.Warn("web.addr is set but storage.path is empty; history API disabled")
	default:
		srv = &http.Server{
			Addr:         e.cfg.Web.Addr,
			Handler:      web.NewServer(db, e.logger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			e.logger.Info("history API starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("history API failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	e.logger.Info("shutting down", zap.Int("active_sessions", bot.Active()))
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			e.logger.Error("history API forced to shutdown", zap.Error(err))
		}
	}
	return bot.Close()
}
