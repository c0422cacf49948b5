package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that AnkiConnect is reachable and the deck exists",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}

	RootCmd.AddCommand(cmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	version, err := e.anki.Version(ctx)
	if err != nil {
		fmt.Fprintf(out, "✗ AnkiConnect at %s: %v\n", e.cfg.Anki.URL, err)
		return errors.New("AnkiConnect is not reachable")
	}
	fmt.Fprintf(out, "✓ AnkiConnect at %s (version %d)\n", e.cfg.Anki.URL, version)
	if version < e.cfg.Anki.Version {
		fmt.Fprintf(out, "! AnkiConnect version %d is older than the configured %d\n", version, e.cfg.Anki.Version)
	}

	decks, err := e.anki.DeckNames(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(decks, e.cfg.Review.Deck) {
		fmt.Fprintf(out, "✗ deck %q not found; available: %v\n", e.cfg.Review.Deck, decks)
		return fmt.Errorf("deck %q not found", e.cfg.Review.Deck)
	}
	fmt.Fprintf(out, "✓ deck %q\n", e.cfg.Review.Deck)

	due, err := e.anki.FindDueCards(ctx, e.cfg.Review.Deck)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ %d cards due\n", len(due))
	return nil
}
