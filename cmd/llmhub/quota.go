package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"llmhub/common/logger"
	"llmhub/internal/svc"
)

var quotaScope string

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "配额管理",
}

var quotaResetCmd = &cobra.Command{
	Use:     "reset",
	Short:   "立即清零已过期窗口的用量计数",
	Example: `  llmhub quota reset --scope daily`,
	RunE:    runQuotaReset,
}

func init() {
	rootCmd.AddCommand(quotaCmd)
	quotaCmd.AddCommand(quotaResetCmd)
	quotaResetCmd.Flags().StringVar(&quotaScope, "scope", "all", "daily, monthly 或 all")
}

func runQuotaReset(cmd *cobra.Command, _ []string) error {
	if quotaScope != "daily" && quotaScope != "monthly" && quotaScope != "all" {
		return fmt.Errorf("无效的 scope: %s", quotaScope)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	s, err := svc.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if quotaScope != "monthly" {
		n, err := s.Tracker.ResetDailyUsage(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "daily: %d\n", n)
	}
	if quotaScope != "daily" {
		n, err := s.Tracker.ResetMonthlyUsage(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "monthly: %d\n", n)
	}
	return nil
}
