package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/rescat/internal/catalog"
	"github.com/hitoshi/rescat/internal/config"
	"github.com/hitoshi/rescat/internal/database"
	"github.com/hitoshi/rescat/internal/detail"
	"github.com/hitoshi/rescat/internal/handler"
	"github.com/hitoshi/rescat/internal/importer"
	"github.com/hitoshi/rescat/internal/logger"
	"github.com/hitoshi/rescat/internal/metrics"
	"github.com/hitoshi/rescat/internal/middleware"
	"github.com/hitoshi/rescat/internal/model"
	"github.com/hitoshi/rescat/internal/repository"
	"github.com/hitoshi/rescat/internal/resource"
	"github.com/hitoshi/rescat/internal/security"
)

// dbConnectTimeout は起動時のDB疎通確認のタイムアウト。
const dbConnectTimeout = 10 * time.Second

// metricsPushTimeout はクライアントコマンド終了時のPushgateway送信のタイムアウト。
const metricsPushTimeout = 5 * time.Second

// ErrResourceUnavailable はshow/feedbackでリソースを表示できなかったことを示す。
// 詳細はPresenterが出力済みのため、終了コードの判定にのみ使う。
var ErrResourceUnavailable = errors.New("resource is unavailable")

// ErrFeedbackFailed はフィードバックの投稿が失敗したことを示す。
var ErrFeedbackFailed = errors.New("feedback submission failed")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを張り直す
	logger.SetupDefaultWithLevel(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
// serve/migrate/importではwにログを出力し、list/show/feedbackではwに表示を出力する。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	rest, err := CommandArgs(cmd, args)
	if err != nil {
		return err
	}

	switch cmd {
	case CommandList, CommandShow, CommandFeedback:
		return runClient(w, cmd, rest)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandImport:
		return runImport(cfg, rest[0])
	default:
		return runServe(cfg)
	}
}

// runServe はリソースリポジトリのAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	ctx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	log.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. サービスの初期化
	repo := repository.NewPostgresResourceRepo(db)
	resourceService := resource.NewResourceService(repo, security.NewContentSanitizer(), collector, log)

	// 4. ルーターの構築（req/min単位の設定をreq/secに変換する）
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitFeedback),
		log,
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusObserver:    collector,
		ResourceService:   resourceService,
		DB:                db,
		Gatherer:          registry,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		log.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	log.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runImport はフィードを1回取得し、各記事をリソースとして登録する。
func runImport(cfg *config.Config, feedURL string) error {
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	db, err := database.Connect(connectCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	imp := importer.NewImporter(
		repository.NewPostgresResourceRepo(db),
		security.NewSSRFGuard(),
		security.NewContentSanitizer(),
		metrics.NewCollector(prometheus.NewRegistry()),
		log,
		cfg.ImportTimeout,
		cfg.ImportMaxSize,
	)

	result, err := imp.Import(ctx, feedURL)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	log.Info("import completed",
		slog.String("feed_title", result.FeedTitle),
		slog.Int("created", result.Created),
		slog.Int("skipped", result.Skipped),
	)
	return nil
}

// runClient はリソースリポジトリのクライアントとして動くサブコマンドを実行する。
// 表示はwに、ログは標準エラー出力に書き出す。
func runClient(w io.Writer, cmd Command, args []string) error {
	cfg := config.LoadClient()
	log := logger.SetupWithLevel(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	defer pushMetrics(cfg, log, cmd, registry)

	client := newCatalogClient(cfg, log, collector)
	switch cmd {
	case CommandList:
		return runList(ctx, w, client)
	case CommandShow:
		return runShow(ctx, w, log, cfg, client, collector, args[0])
	default:
		return runFeedback(ctx, w, log, cfg, client, collector, args[0], strings.Join(args[1:], " "))
	}
}

func newCatalogClient(cfg *config.Config, log *slog.Logger, recorder catalog.MetricsRecorder) *catalog.Client {
	return catalog.NewClient(&http.Client{Timeout: cfg.CatalogTimeout}, log, cfg.CatalogBaseURL, recorder)
}

// pushMetrics はMETRICS_PUSHGATEWAY_URLが設定されていれば収集したメトリクスを送信する。
// 送信の失敗はコマンドの結果に影響させず、警告ログのみ残す。
func pushMetrics(cfg *config.Config, log *slog.Logger, cmd Command, gatherer prometheus.Gatherer) {
	if cfg.MetricsPushURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), metricsPushTimeout)
	defer cancel()

	if err := metrics.Push(ctx, cfg.MetricsPushURL, string(cmd), gatherer); err != nil {
		log.Warn("failed to push metrics",
			slog.String("url", cfg.MetricsPushURL),
			slog.String("error", err.Error()),
		)
	}
}

// runList はリソース一覧を表示する。
func runList(ctx context.Context, w io.Writer, client *catalog.Client) error {
	p := NewPresenter(w, client.BaseURL())

	resources, err := client.ListResources(ctx)
	if err != nil {
		p.RenderListError(err)
		return fmt.Errorf("failed to list resources: %w", err)
	}

	p.RenderList(resources)
	return nil
}

// runShow はリソース詳細ビューを開き、読み込み結果を表示する。
func runShow(ctx context.Context, w io.Writer, log *slog.Logger, cfg *config.Config, client *catalog.Client, recorder detail.OutcomeRecorder, resourceID string) error {
	view := detail.NewView(client, log, detail.ViewConfig{UserID: cfg.FeedbackUserID, Metrics: recorder})
	defer view.Close()

	_, err := showResource(ctx, view, NewPresenter(w, client.BaseURL()), resourceID)
	return err
}

// runFeedback はリソースを読み込んだうえでフィードバックを投稿し、結果を表示する。
func runFeedback(ctx context.Context, w io.Writer, log *slog.Logger, cfg *config.Config, client *catalog.Client, recorder detail.OutcomeRecorder, resourceID, text string) error {
	p := NewPresenter(w, client.BaseURL())
	view := detail.NewView(client, log, detail.ViewConfig{
		UserID:            cfg.FeedbackUserID,
		Metrics:           recorder,
		OnFeedbackApplied: func(res *model.Resource) {
			log.Info("feedback applied",
				slog.String("resource_id", res.ID),
				slog.Int("feedback_count", res.FeedbackCount()),
			)
		},
	})
	defer view.Close()

	if _, err := showResource(ctx, view, p, resourceID); err != nil {
		return err
	}

	var sending sync.Once
	view.Subscribe(func(s detail.Snapshot) {
		if s.Submit.Phase == detail.SubmitSubmitting {
			sending.Do(func() { p.RenderSubmit(s.Submit) })
		}
	})

	state, err := view.Submit(ctx, resourceID, text)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			fmt.Fprintln(w, apiErr.Message)
		}
		return err
	}

	p.RenderSubmit(state)
	if state.Phase != detail.SubmitApplied {
		return ErrFeedbackFailed
	}
	fmt.Fprintln(w)
	p.RenderResource(state.Resource)
	return nil
}

// showResource は読み込み中の表示を出してからリソースを読み込み、結果を描画する。
func showResource(ctx context.Context, view *detail.View, p *Presenter, resourceID string) (detail.LoaderState, error) {
	p.RenderLoader(detail.Snapshot{ResourceID: resourceID})

	state, err := view.Show(ctx, resourceID)
	if err != nil {
		return state, err
	}

	p.RenderLoader(view.Snapshot())
	if state.Phase != detail.LoaderLoaded {
		return state, fmt.Errorf("%w: %s", ErrResourceUnavailable, state.Phase)
	}
	return state, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
