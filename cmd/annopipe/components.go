package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"annopipe/internal/optimizer"
	"annopipe/internal/pipeline"
)

var componentsCmd = &cobra.Command{
	Use:   "components",
	Short: "inspect and query the hot-swap component registry",
}

var componentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "list every registered component slot and its state",
	RunE:  runComponentsList,
}

var (
	recommendKind   string
	recommendDomain string
	recommendID     string
	recommendMaxLat int64
)

var componentsRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "ask the self-optimizer whether a better component is available",
	RunE:  runComponentsRecommend,
}

func init() {
	componentsRecommendCmd.Flags().StringVar(&recommendKind, "kind", "", "component kind (NER_MODEL, KB_PROVIDER, PATTERN_MATCHER)")
	componentsRecommendCmd.Flags().StringVar(&recommendDomain, "domain", "", "domain tag")
	componentsRecommendCmd.Flags().StringVar(&recommendID, "current", "", "currently active component id")
	componentsRecommendCmd.Flags().Int64Var(&recommendMaxLat, "max-latency-ms", 2000, "latency ceiling used to normalize the score")

	componentsCmd.AddCommand(componentsListCmd, componentsRecommendCmd)
}

func runComponentsList(cmd *cobra.Command, args []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}

	slots := a.hotswap.All()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tSTATE\tTRUST\tACTIVE\tDOMAINS")
	for _, s := range slots {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%v\n",
			s.Descriptor.Kind, s.Descriptor.ID, s.State, s.Descriptor.TrustLevel, s.ActiveRequests, s.Descriptor.Domains)
	}
	return tw.Flush()
}

func runComponentsRecommend(cmd *cobra.Command, args []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	if recommendKind == "" || recommendID == "" {
		return fmt.Errorf("--kind and --current are required")
	}

	rec := a.optimizer.Recommend(pipeline.ComponentKind(recommendKind), recommendDomain, recommendID, recommendMaxLat)
	if rec == nil {
		fmt.Println("no recommendation: insufficient samples or no candidate clears the performance threshold")
		return nil
	}
	printRecommendation(rec)
	return nil
}

func printRecommendation(rec *optimizer.Recommendation) {
	fmt.Printf("recommend swapping %s -> %s (domain=%s): current score %.4f, candidate score %.4f\n",
		rec.CurrentID, rec.CandidateID, rec.Domain, rec.CurrentScore, rec.CandidateScore)
}
