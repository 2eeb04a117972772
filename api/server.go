// Package api 对外提供回测服务的HTTP/WebSocket接口。
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockbt/analysis"
	"stockbt/backtest"
	"stockbt/config"
	"stockbt/data"
	"stockbt/logger"
	"stockbt/monitoring"
)

// Server API服务器
type Server struct {
	config   *config.Config
	store    data.Store
	router   *gin.Engine
	upgrader websocket.Upgrader

	wsConns int
}

// NewServer 创建新的API服务器
func NewServer(cfg *config.Config, store data.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(metricsMiddleware())

	server := &Server{
		config: cfg,
		store:  store,
		router: router,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源
			},
		},
	}

	server.setupRoutes()
	return server
}

// setupRoutes 设置路由
func (server *Server) setupRoutes() {
	// 健康检查与指标
	server.router.GET("/health", server.healthCheck)
	server.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := server.router.Group("/api/v1")
	{
		v1.POST("/backtest/run", server.runBacktest)
		v1.POST("/backtest/sweep", server.runSweep)
		v1.GET("/ws/backtest", server.handleWebSocket)
	}
}

// Start 启动服务器
func (server *Server) Start() error {
	addr := ":" + server.config.Server.Port
	logger.Infof("启动API服务器，监听端口: %s", server.config.Server.Port)
	return server.router.Run(addr)
}

// healthCheck 健康检查
func (server *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   "1.0.0",
	})
}

// backtestRequest 单次回测请求，零值字段沿用服务配置
type backtestRequest struct {
	Start           string  `json:"start"`
	End             string  `json:"end"`
	InitialCapital  float64 `json:"initial_capital"`
	ProfitStopRatio float64 `json:"profit_stop_ratio"`
	LossStopRatio   float64 `json:"loss_stop_ratio"`
	MALine          string  `json:"ma_line"`
	MaxPositions    int     `json:"max_positions"`
	Save            bool    `json:"save"` // 为true时结果落库
}

// resolveConfig 请求参数覆盖服务配置
func (server *Server) resolveConfig(req backtestRequest) (backtest.Config, error) {
	cfg := server.config.ToBacktestConfig()
	if req.Start != "" {
		start, err := time.Parse(data.DateLayout, req.Start)
		if err != nil {
			return cfg, fmt.Errorf("无效的开始日期: %s", req.Start)
		}
		cfg.Start = start
	}
	if req.End != "" {
		end, err := time.Parse(data.DateLayout, req.End)
		if err != nil {
			return cfg, fmt.Errorf("无效的结束日期: %s", req.End)
		}
		cfg.End = end
	}
	if req.InitialCapital > 0 {
		cfg.InitialCapital = req.InitialCapital
	}
	if req.ProfitStopRatio > 0 {
		cfg.ProfitStopRatio = req.ProfitStopRatio
	}
	if req.LossStopRatio > 0 {
		cfg.LossStopRatio = req.LossStopRatio
	}
	if req.MALine != "" {
		cfg.MALine = req.MALine
	}
	if req.MaxPositions > 0 {
		cfg.MaxPositions = req.MaxPositions
	}
	return cfg, nil
}

// runBacktest 同步执行一次回测并返回结果
func (server *Server) runBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误"})
		return
	}
	cfg, err := server.resolveConfig(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in, err := backtest.LoadInputs(c.Request.Context(), server.store, cfg,
		server.config.ToUniverseCriteria(), logger.GetLogger())
	if err != nil {
		logger.Errorf("加载回测数据失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	eng, err := backtest.NewEngine(cfg, in.Series, in.Index, in.Universe)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sink, err := eng.Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runID := time.Now().Format("20060102150405")
	if req.Save {
		if err := server.store.SaveRun(c.Request.Context(), sink.ToRun(runID)); err != nil {
			logger.Errorf("保存回测结果失败: %v", err)
		}
	}

	m := analysis.Calculate(sink.Daily(), cfg.InitialCapital, 0.03)
	c.JSON(http.StatusOK, gin.H{
		"run_id":  runID,
		"days":    sink.Days(),
		"metrics": m,
		"daily":   sink.Daily(),
	})
}

// sweepRequest 参数扫描请求，空维度沿用服务配置
type sweepRequest struct {
	Start            string    `json:"start"`
	End              string    `json:"end"`
	ProfitStopRatios []float64 `json:"profit_stop_ratios"`
	LossStopRatios   []float64 `json:"loss_stop_ratios"`
	MALines          []string  `json:"ma_lines"`
	Workers          int       `json:"workers"`
}

// runSweep 同步执行参数网格扫描
func (server *Server) runSweep(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误"})
		return
	}
	cfg, err := server.resolveConfig(backtestRequest{Start: req.Start, End: req.End})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := backtest.SweepParams{
		ProfitStopRatios: req.ProfitStopRatios,
		LossStopRatios:   req.LossStopRatios,
		MALines:          req.MALines,
		Workers:          req.Workers,
	}
	if len(params.ProfitStopRatios) == 0 {
		params.ProfitStopRatios = server.config.Sweep.ProfitStopRatios
	}
	if len(params.LossStopRatios) == 0 {
		params.LossStopRatios = server.config.Sweep.LossStopRatios
	}
	if len(params.MALines) == 0 {
		params.MALines = server.config.Sweep.MALines
	}
	if params.Workers == 0 {
		params.Workers = server.config.Sweep.Workers
	}

	in, err := backtest.LoadInputs(c.Request.Context(), server.store, cfg,
		server.config.ToUniverseCriteria(), logger.GetLogger())
	if err != nil {
		logger.Errorf("加载回测数据失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results, err := backtest.RunSweep(cfg, in, params, logger.GetLogger())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"combinations": len(results),
		"results":      results,
	})
}

// handleWebSocket 流式回测：客户端发一条请求，服务端逐日推送结果
func (server *Server) handleWebSocket(c *gin.Context) {
	conn, err := server.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	server.wsConns++
	monitoring.RecordActiveConnections(server.wsConns)
	defer func() {
		server.wsConns--
		monitoring.RecordActiveConnections(server.wsConns)
	}()

	var req backtestRequest
	if err := conn.ReadJSON(&req); err != nil {
		logger.Errorf("读取WebSocket请求失败: %v", err)
		return
	}
	cfg, err := server.resolveConfig(req)
	if err != nil {
		_ = conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
		return
	}

	in, err := backtest.LoadInputs(c.Request.Context(), server.store, cfg,
		server.config.ToUniverseCriteria(), logger.GetLogger())
	if err != nil {
		_ = conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
		return
	}

	eng, err := backtest.NewEngine(cfg, in.Series, in.Index, in.Universe,
		backtest.WithDayCallback(func(r *backtest.DailyResult) {
			if err := conn.WriteJSON(gin.H{"type": "day", "result": r}); err != nil {
				logger.Errorf("推送每日结果失败: %v", err)
			}
		}))
	if err != nil {
		_ = conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
		return
	}

	sink, err := eng.Run()
	if err != nil {
		_ = conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
		return
	}
	m := analysis.Calculate(sink.Daily(), cfg.InitialCapital, 0.03)
	_ = conn.WriteJSON(gin.H{"type": "done", "days": sink.Days(), "metrics": m})
}

// corsMiddleware CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// metricsMiddleware 请求日志与指标中间件
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := fmt.Sprintf("%d", c.Writer.Status())
		monitoring.RecordRequest(c.Request.Method, c.FullPath(), status, time.Since(start).Seconds())
		logger.Infof("API请求: %s %s %d %v",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
