package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"OpenRebalancer/internal/config"
	"OpenRebalancer/internal/observability/alerting"
	"OpenRebalancer/internal/observability/metrics"
	"OpenRebalancer/internal/portfolio"
	"OpenRebalancer/internal/rebalance"
	"OpenRebalancer/pkg/logger"
)

// PortfolioService values an address.
type PortfolioService interface {
	Build(ctx context.Context, owner common.Address) (*portfolio.Snapshot, error)
}

// RebalanceService runs the plan/step protocol.
type RebalanceService interface {
	Plan(ctx context.Context, req rebalance.PlanRequest) (*rebalance.Plan, error)
	Step(ctx context.Context, req rebalance.StepRequest) (*rebalance.StepResult, error)
}

// WalletService reads raw balances for connect-wallet.
type WalletService interface {
	Inspect(ctx context.Context, owner common.Address) (*portfolio.WalletInfo, error)
}

// Dependencies 汇总 API 层依赖的业务组件，缺失的组件对应接口返回 503。
type Dependencies struct {
	Portfolio PortfolioService
	Rebalance RebalanceService
	Wallets   WalletService
	Alerts    alerting.Dispatcher
	Logger    *zap.Logger
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr    string
	timeout time.Duration
	router  chi.Router
	deps    Dependencies
	log     *zap.Logger
}

// NewServer 构造 API 服务实例并注册路由。
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	l := deps.Logger
	if l == nil {
		l = logger.Named("api")
	}
	s := &Server{
		addr:    cfg.Address,
		timeout: cfg.RequestTimeout(),
		router:  chi.NewRouter(),
		deps:    deps,
		log:     l,
	}
	s.setupMiddleware(cfg.CORSOrigins)
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.observe)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if s.timeout > 0 {
		s.router.Use(requestTimeout(s.timeout))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/portfolio", s.handlePortfolio)
		r.Post("/rebalance", s.handleRebalance)
		r.Post("/connect-wallet", s.handleConnectWallet)
	})
}

// Handler 返回完整的路由，便于测试与嵌入。
func (s *Server) Handler() http.Handler { return s.router }

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", zap.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
