package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var dueJSON bool

func init() {
	cmd := &cobra.Command{
		Use:   "due [deck]",
		Short: "Count the cards due for review",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDue,
	}
	cmd.Flags().BoolVar(&dueJSON, "json", false, "Print the result as JSON")

	RootCmd.AddCommand(cmd)
}

func runDue(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	deck := deckArg(e, args)
	due, err := e.anki.FindDueCards(cmd.Context(), deck)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dueJSON {
		b, _ := json.MarshalIndent(map[string]any{"deck": deck, "due": len(due)}, "", "  ")
		fmt.Fprintln(out, string(b))
		return nil
	}
	fmt.Fprintf(out, "%d cards due in %s\n", len(due), deck)
	return nil
}
