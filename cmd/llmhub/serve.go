package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"llmhub/common/logger"
	"llmhub/common/utils"
	"llmhub/internal/router"
	"llmhub/internal/scheduler"
	"llmhub/internal/svc"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务与配额重置定时任务",
	Example: `  llmhub serve --config config/config.yml
  llmhub serve --with-worker`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "同进程消费任务队列（需配置 Redis）")
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	schedOpts := []scheduler.Option{scheduler.WithLogger(logger.Named("scheduler"))}
	if s.Redis != nil {
		schedOpts = append(schedOpts, scheduler.WithRedis(s.Redis))
	}
	sched, err := scheduler.New(s.Tracker, cfg.Quota, schedOpts...)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() { _ = sched.Shutdown() }()

	if serveWithWorker {
		w, err := s.NewWorker()
		if err != nil {
			return err
		}
		utils.SafeGo("queue-worker", func() { w.Run(ctx) })
	}

	app := router.NewApp(s)
	errCh := make(chan error, 1)
	utils.SafeGo("http-server", func() {
		logger.Info("服务器启动", zap.String("addr", cfg.Server.Addr()))
		errCh <- app.Listen(cfg.Server.Addr())
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务器...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("服务器关闭失败", zap.Error(err))
	}
	logger.Info("服务器已关闭")
	return nil
}
