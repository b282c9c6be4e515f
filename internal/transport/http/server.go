package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tickvault/internal/loader"
	"tickvault/internal/market"
	"tickvault/internal/ops"
	"tickvault/internal/store/ohlcv"
	"tickvault/internal/training"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the submission/read surface the transport exposes.
type Service interface {
	SubmitLoad(req loader.LoadRequest) (ops.Operation, error)
	SubmitTraining(req training.TrainRequest) (ops.Operation, error)
	Operation(id string) (ops.Operation, bool)
	Operations(filter ops.ListFilter) []ops.Operation
	Cancel(id, reason string) error
	QueryCandles(ctx context.Context, symbol, timeframe string, start, end int64, limit int) ([]market.Candle, error)
	ManifestInfo(ctx context.Context, symbol, timeframe string) (ohlcv.Manifest, error)
}

// Server exposes the operation API and the candle read side.
type Server struct {
	addr   string
	svc    Service
	router *gin.Engine
}

func NewServer(addr string, svc Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}
	if addr == "" {
		addr = ":8910"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s := &Server{addr: addr, svc: svc, router: router}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/operations", s.handleOperationList)
	s.router.GET("/operations/:id", s.handleOperationStatus)
	s.router.DELETE("/operations/:id", s.handleOperationCancel)

	api := s.router.Group("/api")
	api.POST("/data/load", s.handleLoadSubmit)
	api.GET("/data/candles", s.handleCandles)
	api.GET("/data/manifest", s.handleManifest)
	api.POST("/training/run", s.handleTrainingSubmit)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleLoadSubmit(c *gin.Context) {
	var req struct {
		Symbol    string `json:"symbol" binding:"required"`
		Timeframe string `json:"timeframe" binding:"required"`
		Start     int64  `json:"start" binding:"required"`
		End       int64  `json:"end" binding:"required"`
		Mode      string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Mode == "" {
		req.Mode = loader.ModeBackfill
	}
	op, err := s.svc.SubmitLoad(loader.LoadRequest{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Start:     req.Start,
		End:       req.End,
		Mode:      req.Mode,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"operation": op})
}

func (s *Server) handleTrainingSubmit(c *gin.Context) {
	var req training.TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, err := s.svc.SubmitTraining(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"operation": op})
}

// handleOperationStatus is the polling endpoint: status and progress at the
// top level, result/error only once present.
func (s *Server) handleOperationStatus(c *gin.Context) {
	op, ok := s.svc.Operation(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
		return
	}
	body := gin.H{
		"status":   op.Status,
		"progress": op.Progress,
	}
	if len(op.Result) > 0 {
		body["result"] = op.Result
	}
	if op.Error != "" {
		body["error"] = op.Error
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleOperationCancel(c *gin.Context) {
	reason := c.DefaultQuery("reason", "cancelled via api")
	if err := s.svc.Cancel(c.Param("id"), reason); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleOperationList(c *gin.Context) {
	list := s.svc.Operations(ops.ListFilter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
	})
	c.JSON(http.StatusOK, gin.H{"operations": list})
}

func (s *Server) handleCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe required"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end"), 10, 64)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "500"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	data, err := s.svc.QueryCandles(c.Request.Context(), symbol, tf, start, end, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": data})
}

func (s *Server) handleManifest(c *gin.Context) {
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe required"})
		return
	}
	info, err := s.svc.ManifestInfo(c.Request.Context(), symbol, tf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
