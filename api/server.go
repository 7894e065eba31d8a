// Package api exposes the REST and websocket surface: market data reads,
// the wallet endpoints and the feed upgrade.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/coinharbor/coinharbor/internal/feed"
	"github.com/coinharbor/coinharbor/internal/marketdata"
	"github.com/coinharbor/coinharbor/internal/wallet"
)

var validate = validator.New()

// Server is the HTTP server. The wallet service may be nil when the wallet
// module is disabled; its routes then answer 503.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	logger  *zap.Logger

	candles marketdata.CandleStore
	wallet  *wallet.Service
	feed    *feed.Handler
	jwt     *JWTAuth
}

func NewServer(
	logger *zap.Logger,
	jwtSecret string,
	candles marketdata.CandleStore,
	walletSvc *wallet.Service,
	feedHandler *feed.Handler,
) *Server {
	s := &Server{
		logger:  logger,
		candles: candles,
		wallet:  walletSvc,
		feed:    feedHandler,
		jwt:     NewJWTAuth(jwtSecret),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("coinharbor-api"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	store := memory.NewStore()
	rate, _ := limiter.NewRateFromFormatted("300-M")
	router.Use(ginlimiter.NewMiddleware(limiter.New(store, rate)))

	s.router = router
	s.registerRoutes()
	return s
}

// Router returns the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/api/v1")

	v1.GET("/health", s.healthCheck)
	v1.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.feed != nil {
		v1.GET("/ws", s.feed.Serve)
	}

	market := v1.Group("/market")
	{
		market.GET("/candles/:productId", s.getCandles)
	}

	w := v1.Group("/wallet", s.jwt.Required())
	{
		w.GET("/addresses/:currency", s.getAddresses)
		w.POST("/addresses/:currency", s.createAddress)
		w.GET("/deposits", s.getDeposits)
		w.GET("/withdrawals", s.getWithdrawals)
		w.POST("/withdrawals", s.createWithdrawal)

		admin := w.Group("/admin", s.jwt.AdminOnly())
		admin.POST("/withdrawals/:id/approve", s.approveWithdrawal)
		admin.POST("/withdrawals/:id/reject", s.rejectWithdrawal)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// Start serves until the context is cancelled, then drains connections
// within timeout.
func (s *Server) Start(ctx context.Context, addr string, timeout time.Duration) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
