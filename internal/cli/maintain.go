package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run decay and cleanup, then report knowledge quality",
	RunE:  runMaintain,
}

func runMaintain(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	decayed, err := eng.ApplyDecayToAll(cmd.Context())
	if err != nil {
		return err
	}
	report, err := eng.AutoCleanup(cmd.Context())
	if err != nil {
		return err
	}
	avg, err := eng.AverageQuality(cmd.Context())
	if err != nil {
		return err
	}
	byCategory, err := eng.QualityByCategory(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("decayed: %d\n", decayed)
	fmt.Printf("cleaned: %d low quality, %d stale, %d flagged\n",
		report.LowQuality, report.Stale, report.NegativeFeedback)
	fmt.Printf("average quality: %.3f\n", avg)
	for cat, q := range byCategory {
		fmt.Printf("  %s: %.3f\n", cat, q)
	}
	return nil
}
