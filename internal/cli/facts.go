package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var factsCategory string

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "List stored facts",
	RunE:  runFacts,
}

func init() {
	factsCmd.Flags().StringVar(&factsCategory, "category", "", "restrict to one category")
	factsCmd.AddCommand(factsForgetCmd)
}

func runFacts(cmd *cobra.Command, args []string) error {
	_, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	facts, err := db.FetchAllActive(cmd.Context())
	if err != nil {
		return err
	}

	shown := 0
	for _, f := range facts {
		if factsCategory != "" && f.Category != factsCategory {
			continue
		}
		age := time.Since(time.Unix(f.CreatedAt, 0)).Round(time.Hour)
		if f.Entity != nil {
			fmt.Printf("[%s] %s %s: %s  conf=%.2f refs=%d age=%s\n",
				f.Category, f.Entity.Name, f.Key, f.Value, f.Confidence, f.TimesReferenced, age)
		} else {
			fmt.Printf("[%s] %s: %s  conf=%.2f refs=%d age=%s\n",
				f.Category, f.Key, f.Value, f.Confidence, f.TimesReferenced, age)
		}
		shown++
	}
	fmt.Printf("%d facts\n", shown)
	return nil
}

var factsForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete all stored facts, versions and vectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteAllFacts(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("all facts deleted")
		return nil
	},
}
