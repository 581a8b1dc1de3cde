package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/volteq/flexplan/config"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Portfolio related commands",
}

var portfolioLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List configured portfolios and their assets",
	RunE:  runPortfolioLs,
}

func init() {
	portfolioCmd.AddCommand(portfolioLsCmd)
	rootCmd.AddCommand(portfolioCmd)
}

func runPortfolioLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	portfolios, err := config.BuildPortfolios(cfg.Portfolios)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(portfolios))
	for n := range portfolios {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d assets)\n", n, len(portfolios[n]))
		for _, a := range portfolios[n] {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-16s %-10s %8.1f .. %.1f kW\n", a.ID, a.Class, a.MinPowerKW, a.MaxPowerKW)
		}
	}
	return nil
}
