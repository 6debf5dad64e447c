package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var privacyCmd = &cobra.Command{
	Use:   "privacy",
	Short: "Show or change what mnemo is allowed to learn",
	RunE:  runPrivacyStatus,
}

func init() {
	privacyCmd.AddCommand(privacyPresetCmd)
	privacyCmd.AddCommand(privacyToggleCmd)
	privacyCmd.AddCommand(privacyLearningCmd)
}

func runPrivacyStatus(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	gate := eng.Gate()
	enabled, err := gate.LearningEnabled(cmd.Context())
	if err != nil {
		return err
	}
	cats, err := gate.AllowedCategories(cmd.Context())
	if err != nil {
		return err
	}
	days, err := gate.CleanupDays(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("learning: %v\n", enabled)
	fmt.Printf("allowed categories: %s\n", strings.Join(cats, ", "))
	fmt.Printf("cleanup horizon: %d days\n", days)
	return nil
}

var privacyPresetCmd = &cobra.Command{
	Use:   "preset [strict|balanced|open]",
	Short: "Apply a privacy preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := eng.Gate().ApplyPreset(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("preset %s applied\n", args[0])
		return nil
	},
}

var privacyToggleCmd = &cobra.Command{
	Use:   "toggle [category]",
	Short: "Allow or forbid one category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()

		allowed, err := eng.Gate().ToggleCategory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		state := "forbidden"
		if allowed {
			state = "allowed"
		}
		fmt.Printf("%s is now %s\n", args[0], state)
		return nil
	},
}

var privacyLearningCmd = &cobra.Command{
	Use:   "learning [on|off]",
	Short: "Switch fact extraction on or off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()

		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		if err := eng.Gate().SetLearningEnabled(cmd.Context(), enabled); err != nil {
			return err
		}
		fmt.Printf("learning %s\n", args[0])
		return nil
	},
}
