// Package intake implements the concrete HTTP binding for §4.9/§6.1: a
// minimal gin server that decodes the canonical signal JSON body, optionally
// verifies a bearer credential for the upstream producer, and hands the
// decoded signal to the single-tenant engine or the multi-tenant fan-out
// broadcaster. It is a transport binding only — it does not reinterpret or
// enrich the signal the way the out-of-scope chat-monitor/LLM-parser layer
// does upstream.
package intake

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradebridge/auth"
	"tradebridge/engine"
	"tradebridge/fanout"
	"tradebridge/logger"
	"tradebridge/signal"
	"tradebridge/trader"
)

// Server is the signal intake HTTP server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	port        int
	engine      *engine.Engine
	broadcaster *fanout.Broadcaster
	multiTenant bool
	bearerToken string // single static token; "" disables bearer verification
}

// New builds the intake server. broadcaster is nil in single-tenant mode; eng
// is always used directly when a request carries an explicit tenant id
// (single-tenant mode, or multi-tenant with a targeted X-Tenant-ID header).
func New(eng *engine.Engine, broadcaster *fanout.Broadcaster, multiTenant bool, bearerToken string, port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:      router,
		port:        port,
		engine:      eng,
		broadcaster: broadcaster,
		multiTenant: multiTenant,
		bearerToken: bearerToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	signals := s.router.Group("/v1/signals")
	signals.Use(s.authMiddleware())
	signals.POST("", s.handlePostSignal)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authMiddleware verifies the bearer credential presented by the upstream
// producer. A request is accepted if either no static token is configured
// (dev mode) or it carries a valid JWT signed with auth.JWTSecret; the
// static token is treated as a pre-shared secret shortcut used by the
// teacher's own simplest integrations.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.bearerToken == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := header[len(prefix):]

		if token == s.bearerToken {
			c.Next()
			return
		}
		if _, err := auth.ValidateJWT(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}
		c.Next()
	}
}

// signalRequest is the §6.1 canonical wire shape.
type signalRequest struct {
	Action        signal.Action  `json:"action" binding:"required"`
	Symbol        string         `json:"symbol" binding:"required"`
	Side          signal.Side    `json:"side"`
	EntryPrice    float64        `json:"entry_price"`
	StopLoss      float64        `json:"stop_loss"`
	TakeProfit    float64        `json:"take_profit"`
	CloseRatio    float64        `json:"close_ratio"`
	NewStopLoss   *float64       `json:"new_stop_loss"`
	NewTakeProfit *float64       `json:"new_take_profit"`
	IsDca         bool           `json:"is_dca"`
	Source        *signal.Source `json:"source"`
}

func (r signalRequest) toSignal() *signal.TradeSignal {
	sig := &signal.TradeSignal{
		Action:        r.Action,
		Symbol:        r.Symbol,
		Side:          r.Side,
		EntryPriceLow: r.EntryPrice,
		StopLoss:      r.StopLoss,
		CloseRatio:    r.CloseRatio,
		NewStopLoss:   r.NewStopLoss,
		NewTakeProfit: r.NewTakeProfit,
		IsDca:         r.IsDca,
		Source:        r.Source,
	}
	if r.TakeProfit != 0 {
		sig.TakeProfits = []float64{r.TakeProfit}
	}
	sig.Normalize()
	return sig
}

// handlePostSignal decodes the body, resolves the target tenant(s), and
// dispatches. In single-tenant mode (or when multiTenant is false) it always
// calls the engine directly. In multi-tenant mode, an explicit
// "X-Tenant-ID" header targets one tenant; its absence broadcasts to every
// eligible tenant via the fan-out broadcaster.
func (s *Server) handlePostSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig := req.toSignal()

	if !s.multiTenant {
		results := s.engine.Dispatch("", sig)
		c.JSON(http.StatusOK, gin.H{"results": toResponseResults(results)})
		return
	}

	if tenantID := c.GetHeader("X-Tenant-ID"); tenantID != "" {
		results := s.engine.Dispatch(tenantID, sig)
		c.JSON(http.StatusOK, gin.H{"results": toResponseResults(results)})
		return
	}

	summary := s.broadcaster.Broadcast(sig)
	c.JSON(http.StatusOK, gin.H{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"timed_out": summary.TimedOut,
	})
}

type responseResult struct {
	Step         string  `json:"step"`
	Success      bool    `json:"success"`
	Symbol       string  `json:"symbol,omitempty"`
	OrderID      string  `json:"order_id,omitempty"`
	Price        float64 `json:"price,omitempty"`
	Quantity     float64 `json:"quantity,omitempty"`
	ErrorMessage string  `json:"error,omitempty"`
}

func toResponseResults(results []trader.OrderResult) []responseResult {
	out := make([]responseResult, 0, len(results))
	for _, r := range results {
		out = append(out, responseResult{
			Step: r.Step, Success: r.Success, Symbol: r.Symbol,
			OrderID: r.OrderID, Price: r.Price, Quantity: r.Quantity,
			ErrorMessage: r.ErrorMessage,
		})
	}
	return out
}

// Start runs the HTTP server, blocking until it stops or fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	logger.Infof("intake: signal HTTP server starting at http://localhost%s", addr)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
