package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veylin/mnemo/internal/engine"
)

var (
	searchLimit    int
	searchMin      float64
	searchHybrid   bool
	searchSemantic float64
	searchKeyword  float64
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored facts by meaning",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	searchCmd.Flags().Float64Var(&searchMin, "min", engine.DefaultMinSimilarity, "minimum similarity")
	searchCmd.Flags().BoolVar(&searchHybrid, "hybrid", false, "blend keyword matching into the ranking")
	searchCmd.Flags().Float64Var(&searchSemantic, "semantic-weight", engine.DefaultSemanticWeight, "hybrid weight for the embedding score")
	searchCmd.Flags().Float64Var(&searchKeyword, "keyword-weight", engine.DefaultKeywordWeight, "hybrid weight for the keyword score")
}

func runSearch(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	query := strings.Join(args, " ")

	if searchHybrid {
		results, err := eng.FindSimilarFactsHybrid(cmd.Context(), query, searchLimit, searchSemantic, searchKeyword)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%.3f (sem %.3f, kw %.3f)  [%s] %s: %s\n",
				r.FinalScore, r.SemanticScore, r.KeywordScore, r.Fact.Category, r.Fact.Key, r.Fact.Value)
		}
		return nil
	}

	results, err := eng.FindSimilarFacts(cmd.Context(), query, searchLimit, searchMin)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%.3f  [%s] %s: %s\n", r.Similarity, r.Fact.Category, r.Fact.Key, r.Fact.Value)
	}
	return nil
}
