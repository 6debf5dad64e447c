package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	extractQuick          bool
	extractConversationID string
)

var extractCmd = &cobra.Command{
	Use:   "extract [text]",
	Short: "Learn facts from a piece of text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractQuick, "quick", false, "pattern rules only, skip the language model")
	extractCmd.Flags().StringVar(&extractConversationID, "conversation", "", "conversation id to tag stored facts with")
}

func runExtract(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	eng.Start()
	defer eng.Stop()

	text := strings.Join(args, " ")

	run := eng.ExtractKnowledge
	if extractQuick {
		run = eng.QuickExtract
	}
	result, err := run(cmd.Context(), text, extractConversationID)
	if err != nil {
		return err
	}

	if len(result.Facts) == 0 {
		fmt.Println("nothing learned")
		return nil
	}
	fmt.Printf("learned %d facts (%d new, %d merged, %d skipped)\n",
		len(result.Facts), result.New, result.Merged, result.Skipped)
	for _, f := range result.Facts {
		if f.Entity != nil {
			fmt.Printf("  [%s] %s %s: %s (%.2f)\n", f.Category, f.Entity.Name, f.Key, f.Value, f.Confidence)
		} else {
			fmt.Printf("  [%s] %s: %s (%.2f)\n", f.Category, f.Key, f.Value, f.Confidence)
		}
	}
	return nil
}
