package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/tesquery/internal/models"
	"github.com/langchou/tesquery/internal/nlq"
	"github.com/langchou/tesquery/internal/service"
	"github.com/langchou/tesquery/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger     *zap.Logger
	dispatcher *service.Dispatcher
	wsHub      *ws.Hub
	upgrader   websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(logger *zap.Logger, dispatcher *service.Dispatcher, wsHub *ws.Hub) *Handler {
	return &Handler{
		logger:     logger,
		dispatcher: dispatcher,
		wsHub:      wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 自然语言查询
		api.POST("/query", h.Query)

		// 车辆
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:vin/state", h.GetVehicleState)
		api.GET("/vehicles/:vin/battery", h.GetBatteryHealth)

		// 行程
		api.GET("/vehicles/:vin/drives", h.GetDrivingHistory)
		api.GET("/vehicles/:vin/drives/latest/analysis", h.AnalyzeLatestDrive)
		api.GET("/vehicles/:vin/mileage/weekly", h.GetWeeklyMileage)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// queryRequest 自然语言查询请求体
type queryRequest struct {
	Query string `json:"query" binding:"required"`
}

// Query 自然语言查询
// POST /api/query
func (h *Handler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	result, err := h.dispatcher.HandleQuery(c.Request.Context(), req.Query)
	if err != nil {
		h.logger.Error("Failed to handle query", zap.String("query", req.Query), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to execute query"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListVehicles 获取车辆列表
func (h *Handler) ListVehicles(c *gin.Context) {
	data, err := h.dispatcher.Execute(c.Request.Context(), models.OpGetVehicles, nil)
	if err != nil {
		h.logger.Error("Failed to list vehicles", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to list vehicles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// GetVehicleState 获取车辆实时状态
func (h *Handler) GetVehicleState(c *gin.Context) {
	params := models.Params{"vin": c.Param("vin")}
	if c.Query("refresh") == "true" {
		params["use_cache"] = false
	}

	data, err := h.dispatcher.Execute(c.Request.Context(), models.OpGetVehicleCurrentState, params)
	if err != nil {
		h.logger.Error("Failed to get vehicle state", zap.String("vin", c.Param("vin")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get vehicle state"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// GetBatteryHealth 获取电池健康数据
func (h *Handler) GetBatteryHealth(c *gin.Context) {
	health, err := h.dispatcher.GetBatteryHealth(c.Request.Context(), c.Param("vin"))
	if err != nil {
		h.logger.Error("Failed to get battery health", zap.String("vin", c.Param("vin")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get battery health"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": health})
}

// GetDrivingHistory 获取合并后的行程历史
// GET /api/vehicles/:vin/drives?start_date=...&end_date=...&limit=50
func (h *Handler) GetDrivingHistory(c *gin.Context) {
	params, ok := h.rangeParams(c)
	if !ok {
		return
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && limit > 0 {
		params["limit"] = limit
	}

	optimized := nlq.OptimizeForMCP(models.OpGetDrivingHistory, params)
	data, err := h.dispatcher.Execute(c.Request.Context(), models.OpGetDrivingHistory, optimized.Params)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to get driving history", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get driving history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// GetWeeklyMileage 获取按周里程
func (h *Handler) GetWeeklyMileage(c *gin.Context) {
	params, ok := h.rangeParams(c)
	if !ok {
		return
	}

	optimized := nlq.OptimizeForMCP(models.OpGetWeeklyMileage, params)
	data, err := h.dispatcher.Execute(c.Request.Context(), models.OpGetWeeklyMileage, optimized.Params)
	if err != nil {
		h.logger.Error("Failed to get weekly mileage", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get weekly mileage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// AnalyzeLatestDrive 分析最近一次行程
// GET /api/vehicles/:vin/drives/latest/analysis?days_back=7
func (h *Handler) AnalyzeLatestDrive(c *gin.Context) {
	params := models.Params{"vin": c.Param("vin")}
	if daysBack, err := strconv.Atoi(c.DefaultQuery("days_back", "7")); err == nil && daysBack > 0 {
		params["days_back"] = daysBack
	}

	optimized := nlq.OptimizeForMCP(models.OpAnalyzeLatestDrive, params)
	data, err := h.dispatcher.Execute(c.Request.Context(), models.OpAnalyzeLatestDrive, optimized.Params)
	if err != nil {
		if errors.Is(err, models.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to analyze latest drive", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to analyze latest drive"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// rangeParams 解析 vin 与时间窗查询参数，格式不合法时直接写入 400 响应
func (h *Handler) rangeParams(c *gin.Context) (models.Params, bool) {
	params := models.Params{"vin": c.Param("vin")}
	for _, key := range []string{"start_date", "end_date"} {
		value := c.Query(key)
		if value == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + key + ", expected RFC3339"})
			return nil, false
		}
		params[key] = value
	}
	return params, true
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
