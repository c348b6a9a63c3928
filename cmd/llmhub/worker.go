package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"llmhub/common/logger"
	"llmhub/internal/svc"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "消费文档处理队列",
	Long:  `从 Redis 队列拉取 process/reprocess/rechunk/import 任务并执行，同一文档同时只处理一个任务。`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	s, err := svc.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("释放资源失败", zap.Error(err))
		}
	}()

	w, err := s.NewWorker()
	if err != nil {
		return err
	}
	w.Run(ctx)
	return nil
}
