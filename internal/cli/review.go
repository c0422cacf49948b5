package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/conorfennell/ankibot/internal/review"
	"github.com/conorfennell/ankibot/internal/terminal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	cmd := &cobra.Command{
		Use:   "review [deck]",
		Short: "Review due cards in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReview,
	}

	RootCmd.AddCommand(cmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	db, recorder, err := e.openHistory()
	if err != nil {
		return err
	}
	var observers []review.Observer
	if db != nil {
		defer db.Close()
		observers = append(observers, recorder)
	}

	source, err := review.NewSource(e.cfg.Review.Mode, e.anki, e.logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	c := review.NewController(review.Settings{
		Owner:   terminal.Owner,
		Deck:    deckArg(e, args),
		Timeout: e.cfg.Review.Timeout,
		Fields:  e.cfg.FieldMap(),
	}, e.anki, source, terminal.NewPresenter(out), e.logger, observers...)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()
	sessionCtx, quit := context.WithCancel(ctx)
	defer quit()
	go func() {
		// Without input nobody can answer, so quitting and closed input both
		// end the session.
		err := terminal.Feed(sessionCtx, cmd.InOrStdin(), cmd.ErrOrStderr(), c.Gate())
		if errors.Is(err, terminal.ErrQuit) || errors.Is(err, io.EOF) {
			e.logger.Debug("terminal input finished", zap.Error(err))
			quit()
		}
	}()

	res := c.Run(sessionCtx)
	fmt.Fprintf(out, "\n%d of %d cards reviewed", res.Reviewed, res.Total)
	if res.Failed > 0 {
		fmt.Fprintf(out, " (%d not accepted by Anki)", res.Failed)
	}
	fmt.Fprintln(out, ".")

	switch res.Reason {
	case review.ReasonServiceFailure, review.ReasonPresentation:
		e.logger.Debug("session failed", zap.Error(res.Err))
		return fmt.Errorf("review aborted: %w", res.Err)
	}
	return nil
}
