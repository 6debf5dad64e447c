package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var contextCompact bool

var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Build a prompt context block from stored facts",
	RunE:  runContext,
}

func init() {
	contextCmd.Flags().BoolVar(&contextCompact, "compact", false, "unlabeled bullets, basics and relevant facts only")
}

func runContext(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	query := strings.Join(args, " ")

	var text string
	if contextCompact {
		text, err = eng.BuildCompactContext(cmd.Context(), query)
	} else {
		text, err = eng.BuildContext(cmd.Context(), query)
	}
	if err != nil {
		return err
	}

	if text == "" {
		fmt.Println("no facts stored yet")
		return nil
	}
	fmt.Println(text)
	return nil
}
