// Package catalog はリソースリポジトリ（HTTP）のクライアントを提供する。
// リソース詳細の取得とフィードバック投稿のエンドポイントを呼び出し、
// 失敗をNotFound / 通信エラー / レスポンスエラーに分類して返す。
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/rescat/internal/model"
)

const (
	// DefaultBaseURL はリソースリポジトリのデフォルトURL。
	DefaultBaseURL = "http://localhost:5002"
	// userAgent はリクエストに付与するUser-Agent。
	userAgent = "Rescat/1.0 Resource Catalog Client"
	// maxResponseSize はレスポンスボディの読み取り上限（5MB）。
	maxResponseSize = 5 << 20
)

// ErrNotFound はリポジトリがリソースの不存在（404）を返したことを示す。
var ErrNotFound = errors.New("resource not found")

// TransportError はレスポンスを受け取れなかった通信レベルの失敗を表す。
type TransportError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("リソースリポジトリへの接続に失敗しました: %v", e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseError は2xx以外のレスポンス、または解析できないレスポンスを表す。
type ResponseError struct {
	StatusCode int
	StatusText string
	// APIError はレスポンスボディが統一エラーフォーマットだった場合に設定される。
	APIError *model.APIError
	// Err はボディの解析に失敗した場合の原因。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *ResponseError) Error() string {
	return fmt.Sprintf("HTTPエラー: ステータス %d - %s", e.StatusCode, e.StatusText)
}

// Unwrap は解析失敗の原因を返す。
func (e *ResponseError) Unwrap() error {
	return e.Err
}

// MetricsRecorder はクライアントが記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(operation string, duration time.Duration)
}

// Client はリソースリポジトリのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	metrics    MetricsRecorder // nilの場合は記録しない
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, metrics MetricsRecorder) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		metrics:    metrics,
	}
}

// BaseURL はリポジトリのベースURLを返す。エラー表示のヒントに使う。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetResource はリソースを1件取得する。
// GET /resources/{id}
// 404の場合はErrNotFound、その他の非2xxは*ResponseError、通信失敗は*TransportErrorを返す。
func (c *Client) GetResource(ctx context.Context, resourceID string) (*model.Resource, error) {
	var res model.Resource
	if err := c.do(ctx, "get_resource", http.MethodGet, c.resourcePath(resourceID), nil, &res, http.StatusOK); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitFeedback はフィードバックを投稿し、更新後のリソースを返す。
// POST /resources/{id}/feedback
// 200/201以外は*ResponseError、通信失敗は*TransportErrorを返す。
func (c *Client) SubmitFeedback(ctx context.Context, resourceID string, sub model.FeedbackSubmission) (*model.Resource, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("フィードバックのエンコードに失敗しました: %w", err)
	}

	var res model.Resource
	if err := c.do(ctx, "submit_feedback", http.MethodPost, c.resourcePath(resourceID)+"/feedback", body, &res,
		http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResources はリソース一覧を取得する。
// GET /resources
func (c *Client) ListResources(ctx context.Context) ([]model.Resource, error) {
	var list []model.Resource
	if err := c.do(ctx, "list_resources", http.MethodGet, "/resources", nil, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return list, nil
}

// resourcePath はリソースIDをエスケープしたパスを返す。
func (c *Client) resourcePath(resourceID string) string {
	return "/resources/" + url.PathEscape(resourceID)
}

// do はHTTPリクエストを1回だけ実行し、acceptedのいずれかのステータスであればoutへJSONをデコードする。
// それ以外のステータスは*ResponseErrorになる。リトライは行わない。
func (c *Client) do(ctx context.Context, operation, method, path string, body []byte, out any, accepted ...int) error {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("リソースリポジトリの呼び出しに失敗しました",
			slog.String("operation", operation),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordHTTPStatus(resp.StatusCode)
		c.metrics.RecordRequestLatency(operation, time.Since(start))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return &TransportError{Err: err}
	}

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		c.logger.Info("リソースが見つかりません",
			slog.String("operation", operation),
			slog.String("path", path),
		)
		return ErrNotFound
	}

	if !slices.Contains(accepted, resp.StatusCode) {
		c.logger.Warn("リソースリポジトリがエラーステータスを返しました",
			slog.String("operation", operation),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return &ResponseError{
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp),
			APIError:   decodeAPIError(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("レスポンスJSONのパースに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return &ResponseError{
			StatusCode: resp.StatusCode,
			StatusText: "レスポンスの解析に失敗しました",
			Err:        err,
		}
	}

	return nil
}

// statusText はレスポンスのステータス行から理由句を取り出す。
// 理由句がない場合は標準のテキストを使う。
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// apiErrorBody はサーバーの統一エラーフォーマット。
type apiErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// decodeAPIError はボディを統一エラーフォーマットとして解釈する。
// 該当しない場合はnilを返す。
func decodeAPIError(data []byte) *model.APIError {
	var body apiErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		return nil
	}
	return &model.APIError{
		Code:     body.Code,
		Message:  body.Message,
		Category: body.Category,
		Action:   body.Action,
	}
}
