package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/tesquery/internal/api/handlers"
	"github.com/langchou/tesquery/internal/api/tessie"
	"github.com/langchou/tesquery/internal/cache"
	"github.com/langchou/tesquery/internal/config"
	"github.com/langchou/tesquery/internal/mcp"
	"github.com/langchou/tesquery/internal/service"
	"github.com/langchou/tesquery/pkg/ws"
)

const version = "0.1.0"

func main() {
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdin/stdout instead of HTTP")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志。MCP 模式下 stdout 是协议流，日志必须走 stderr
	logger := initLogger(cfg.Debug, *mcpMode)
	defer logger.Sync()

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建 Tessie API 客户端
	client := tessie.NewClient(cfg.TessieAPIHost, cfg.TessieAccessToken)

	// 响应缓存
	responseCache := cache.New(cfg.CacheTTL, cfg.CacheMaxEntries)

	if *mcpMode {
		runMCP(ctx, cfg, logger, client, responseCache)
		return
	}
	runHTTP(ctx, cfg, logger, client, responseCache)
}

// runMCP MCP stdio 模式：无 WebSocket、无轮询，按需拉取数据
func runMCP(ctx context.Context, cfg *config.Config, logger *zap.Logger, client *tessie.Client, responseCache *cache.Cache) {
	dispatcher := service.NewDispatcher(cfg, logger, client, responseCache, nil)

	server := mcp.NewServer(dispatcher, logger, version)
	if err := server.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("MCP server failed", zap.Error(err))
	}
}

// runHTTP HTTP 服务模式：gin 路由 + WebSocket 推送 + 后台状态轮询
func runHTTP(ctx context.Context, cfg *config.Config, logger *zap.Logger, client *tessie.Client, responseCache *cache.Cache) {
	logger.Info("Starting Tesquery", zap.String("port", cfg.ServerPort))

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 创建派发器
	dispatcher := service.NewDispatcher(cfg, logger, client, responseCache, wsHub)

	// 新连接推送所有已知车辆状态
	wsHub.SetInitDataProvider(func() interface{} {
		return dispatcher.States().GetAllSnapshots()
	})

	// 启动状态轮询
	poller := service.NewPoller(dispatcher, logger, cfg.DefaultVIN)
	poller.Start(ctx)

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, dispatcher, wsHub)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止轮询
	poller.Stop()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool, stderrOnly bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	if stderrOnly {
		config.OutputPaths = []string{"stderr"}
		config.ErrorOutputPaths = []string{"stderr"}
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
