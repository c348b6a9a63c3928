package router

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"

	"llmhub/common/middleware"
	"llmhub/common/response"
	"llmhub/internal/handler"
	"llmhub/internal/svc"
)

// NewApp 创建 fiber 应用并注册路由
func NewApp(s *svc.ServiceContext) *fiber.App {
	cfg := s.Config
	bodyLimit := max(cfg.Server.BodyLimitMB, cfg.Knowledge.MaxUploadMB+1) << 20
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		BodyLimit:    bodyLimit,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return response.ErrorWithStatus(c, e.Code, e.Code, e.Message, nil)
			}
			return response.ServerError(c, err.Error())
		},
	})
	Setup(app, handler.New(s), cfg.App.Name)
	return app
}

// Setup 设置路由
func Setup(app *fiber.App, h *handler.Handler, name string) {
	// 全局中间件
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// 健康检查
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"app":    name,
		})
	})

	api := app.Group("/api")

	api.Post("/chunker/preview", h.ChunkPreview)

	kb := api.Group("/knowledge-bases")
	kb.Post("/", h.KnowledgeBaseCreate)
	kb.Get("/:id", h.KnowledgeBaseGet)
	kb.Post("/:id/search", h.Search)
	kb.Get("/:id/queries", h.QueryList)

	// 文档
	kb.Post("/:id/documents", h.DocumentUpload)
	kb.Post("/:id/documents/url", h.DocumentAddURL)
	kb.Get("/:id/documents/:docId", h.DocumentGet)
	kb.Delete("/:id/documents/:docId", h.DocumentDelete)
	kb.Post("/:id/documents/:docId/process", h.DocumentProcess)
	kb.Post("/:id/documents/:docId/reprocess", h.DocumentReprocess)
	kb.Post("/:id/documents/:docId/rechunk", h.DocumentRechunk)
	kb.Post("/:id/documents/:docId/preview-chunks", h.DocumentPreviewChunks)
	kb.Post("/:id/documents/:docId/import-chunks", h.DocumentImportChunks)

	// 分块
	kb.Get("/:id/documents/:docId/chunks", h.ChunkList)
	kb.Post("/:id/documents/:docId/chunks", h.ChunkCreate)
	kb.Put("/:id/documents/:docId/chunks/:chunkId", h.ChunkUpdate)
	kb.Delete("/:id/documents/:docId/chunks/:chunkId", h.ChunkDelete)

	// 配额
	api.Get("/teams/:teamId/models/:modelId/usage", h.ModelUsage)
	api.Post("/quota/reset", h.QuotaReset)
}
