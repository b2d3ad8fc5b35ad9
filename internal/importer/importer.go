// Package importer はRSS/Atomフィードの記事をカタログのリソースとして取り込む。
//
// 取り込みはSSRF検証 → 安全なHTTPクライアントでの取得 → gofeedによるパース →
// リソース作成の順に行う。インポート元URLが既に登録されている記事はスキップする。
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/rescat/internal/model"
	"github.com/hitoshi/rescat/internal/security"
)

const (
	// ResourceTypeArticle はインポートしたリソースの種別。
	ResourceTypeArticle = "article"

	userAgent = "Rescat/1.0 Feed Importer"

	// カラム長の上限に合わせて切り詰める
	maxTitleLength  = 500
	maxAuthorLength = 255
)

// 失敗理由のメトリクスラベル
const (
	reasonInvalidURL  = "invalid_url"
	reasonSSRFBlocked = "ssrf_blocked"
	reasonFetch       = "fetch"
	reasonHTTPStatus  = "http_status"
	reasonParse       = "parse"
	reasonStore       = "store"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// ResourceStore はインポートに必要なリソースの永続化操作。
type ResourceStore interface {
	Create(ctx context.Context, res *model.Resource, sourceURL string) error
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
}

// Metrics はインポート結果を記録するメトリクスのインターフェース。
type Metrics interface {
	RecordImportFailure(reason string)
	RecordResourcesImported(count int)
}

// Result はインポートの結果。
type Result struct {
	FeedTitle string
	Created   int
	Skipped   int
}

// Importer はフィードを取得してリソースを作成する。
type Importer struct {
	store       ResourceStore
	ssrfGuard   SSRFValidator
	sanitizer   security.ContentSanitizerService
	metrics     Metrics // nilの場合は記録しない
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	now         func() time.Time
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(
	store ResourceStore,
	ssrfGuard SSRFValidator,
	sanitizer security.ContentSanitizerService,
	metrics Metrics,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Importer {
	return &Importer{
		store:       store,
		ssrfGuard:   ssrfGuard,
		sanitizer:   sanitizer,
		metrics:     metrics,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// Import はfeedURLのフィードを取得し、各記事をリソースとして作成する。
// URLの問題はINVALID_URL / SSRF_BLOCKED、取得失敗はFETCH_FAILED、
// パース失敗はPARSE_FAILEDのAPIErrorを返す。
func (im *Importer) Import(ctx context.Context, feedURL string) (*Result, error) {
	start := time.Now()

	if err := im.ssrfGuard.ValidateURL(feedURL); err != nil {
		im.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, security.ErrBlockedDestination) {
			im.recordFailure(reasonSSRFBlocked)
			return nil, model.NewSSRFBlockedError()
		}
		im.recordFailure(reasonInvalidURL)
		return nil, model.NewInvalidURLError(err.Error())
	}

	body, err := im.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	parsedFeed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		im.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		im.recordFailure(reasonParse)
		return nil, model.NewParseFailedError()
	}

	result := &Result{FeedTitle: parsedFeed.Title}
	seen := make(map[string]bool)

	for _, item := range parsedFeed.Items {
		res, sourceURL := im.convertItem(item)
		if res == nil {
			result.Skipped++
			continue
		}

		if sourceURL != "" {
			if seen[sourceURL] {
				result.Skipped++
				continue
			}
			seen[sourceURL] = true

			exists, err := im.store.ExistsBySourceURL(ctx, sourceURL)
			if err != nil {
				im.recordFailure(reasonStore)
				return result, fmt.Errorf("インポート元URLの確認に失敗しました: %w", err)
			}
			if exists {
				result.Skipped++
				continue
			}
		}

		if err := im.store.Create(ctx, res, sourceURL); err != nil {
			im.recordFailure(reasonStore)
			return result, fmt.Errorf("リソースの作成に失敗しました: %w", err)
		}
		result.Created++
	}

	if im.metrics != nil && result.Created > 0 {
		im.metrics.RecordResourcesImported(result.Created)
	}

	im.logger.Info("フィードのインポートが完了しました",
		slog.String("feed_url", feedURL),
		slog.String("feed_title", result.FeedTitle),
		slog.Int("created", result.Created),
		slog.Int("skipped", result.Skipped),
		slog.Int("items_total", len(parsedFeed.Items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, nil
}

// fetch は安全なクライアントでフィードを1回だけ取得する。
func (im *Importer) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	client := im.ssrfGuard.NewSafeClient(im.timeout, im.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		im.recordFailure(reasonInvalidURL)
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		im.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		im.recordFailure(reasonFetch)
		return nil, model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		im.logger.Warn("予期しないHTTPステータスコード",
			slog.String("feed_url", feedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		im.recordFailure(reasonHTTPStatus)
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBodySize))
	if err != nil {
		im.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		im.recordFailure(reasonFetch)
		return nil, model.NewFetchFailedError(err.Error())
	}
	return body, nil
}

// convertItem はgofeedの記事をリソースに変換する。
// タイトルもリンクもない記事はnilを返す。
func (im *Importer) convertItem(item *gofeed.Item) (*model.Resource, string) {
	if item == nil {
		return nil, ""
	}

	sourceURL := strings.TrimSpace(item.Link)
	// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
	if sourceURL == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
		sourceURL = item.GUID
	}

	title := im.sanitizer.SanitizeText(item.Title)
	if title == "" {
		title = sourceURL
	}
	if title == "" {
		return nil, ""
	}

	description := item.Description
	if description == "" {
		description = item.Content
	}

	var author string
	if item.Author != nil {
		author = item.Author.Name
	}
	if author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}

	createdAt := im.now()
	if item.PublishedParsed != nil {
		createdAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		createdAt = *item.UpdatedParsed
	}

	return &model.Resource{
		ID:          uuid.New().String(),
		Title:       truncate(title, maxTitleLength),
		Type:        ResourceTypeArticle,
		Description: im.sanitizer.SanitizeText(description),
		AuthorID:    truncate(strings.TrimSpace(author), maxAuthorLength),
		CreatedAt:   createdAt.UTC(),
		Feedback:    []model.Feedback{},
	}, sourceURL
}

func (im *Importer) recordFailure(reason string) {
	if im.metrics != nil {
		im.metrics.RecordImportFailure(reason)
	}
}

// truncate はsを最大maxRunes文字に切り詰める。
func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}
