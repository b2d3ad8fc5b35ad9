package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rescat/internal/metrics"
	"github.com/hitoshi/rescat/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// healthCheckTimeout はヘルスチェックでのDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// Pinger はヘルスチェックで疎通を確認する対象。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusObserver    middleware.StatusObserver // nilの場合はステータスを記録しない

	ResourceService ResourceServiceInterface

	// ヘルスチェック対象。nilの場合は常にokを返す
	DB Pinger

	// /metricsの公開元。nilの場合はルートを登録しない
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// フィードバック投稿にはさらにRateLimit(Feedback)を適用する。
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusObserver))

	r.Get("/health", healthHandler(deps.DB, deps.Logger))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	resourceHandler := NewResourceHandler(deps.ResourceService, deps.Logger)

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/resources", func(r chi.Router) {
			r.Get("/", resourceHandler.ListResources)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", resourceHandler.GetResource)
				r.With(deps.RateLimiter.FeedbackMiddleware()).Post("/feedback", resourceHandler.AddFeedback)
			})
		})
	})

	return r
}

// healthHandler はDB疎通を含むヘルスチェックのハンドラーを返す。
// GET /health
func healthHandler(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				logger.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
