package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veylin/mnemo/internal/engine"
)

var conflictsResolve string

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List contradicting facts, optionally resolve them",
	RunE:  runConflicts,
}

func init() {
	conflictsCmd.Flags().StringVar(&conflictsResolve, "resolve", "",
		"resolve all with a policy: keepHighestQuality, keepMostRecent, merge, keepBoth")
}

func runConflicts(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	if conflictsResolve != "" {
		n, err := eng.AutoResolveAll(cmd.Context(), conflictsResolve)
		if err != nil {
			return err
		}
		fmt.Printf("resolved %d conflicts with %s\n", n, conflictsResolve)
		return nil
	}

	conflicts, err := eng.DetectConflicts(cmd.Context())
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Println("no conflicts")
		return nil
	}
	for _, c := range conflicts {
		switch c.Kind {
		case engine.ConflictOppositePreferences:
			fmt.Printf("%s: %s vs %s\n", c.Kind, c.Facts[0].Key, c.Facts[1].Key)
		default:
			values := make([]string, len(c.Facts))
			for i, f := range c.Facts {
				values[i] = fmt.Sprintf("%q", f.Value)
			}
			fmt.Printf("%s: %s/%s %s\n", c.Kind, c.Facts[0].Category, c.Key, strings.Join(values, " vs "))
		}
	}
	fmt.Printf("%d conflicts\n", len(conflicts))
	return nil
}
