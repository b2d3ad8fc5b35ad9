// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, resource, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はエラーコードが一致するAPIErrorを同一とみなす。
// errors.Is(err, model.ErrEmptyFeedback) のような判定に使う。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// 定義済みエラーコード
const (
	ErrCodeResourceNotFound   = "RESOURCE_NOT_FOUND"
	ErrCodeInvalidResourceID  = "INVALID_RESOURCE_ID"
	ErrCodeEmptyFeedback      = "EMPTY_FEEDBACK"
	ErrCodeResourceIDMismatch = "RESOURCE_ID_MISMATCH"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeFetchFailed        = "FETCH_FAILED"
	ErrCodeParseFailed        = "PARSE_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ErrEmptyFeedback は空のフィードバック判定用のセンチネル。
// errors.Is はコードのみを比較する。
var ErrEmptyFeedback = &APIError{Code: ErrCodeEmptyFeedback}

// NewResourceNotFoundError はリソース未検出エラーを生成する。
func NewResourceNotFoundError(resourceID string) *APIError {
	return &APIError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("指定されたリソースが見つかりません: %s", resourceID),
		Category: "resource",
		Action:   "リソース一覧に戻り、別のリソースを選択してください。",
	}
}

// NewInvalidResourceIDError はリソースIDが空の場合のエラーを生成する。
func NewInvalidResourceIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResourceID,
		Message:  "リソースIDが指定されていません。",
		Category: "validation",
		Action:   "表示するリソースのIDを指定してください。",
	}
}

// NewEmptyFeedbackError は空白のみのフィードバックを拒否するエラーを生成する。
func NewEmptyFeedbackError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyFeedback,
		Message:  "フィードバックの本文が空です。",
		Category: "validation",
		Action:   "フィードバックの内容を入力してから送信してください。",
	}
}

// NewResourceIDMismatchError はパスとボディのリソースIDが一致しない場合のエラーを生成する。
func NewResourceIDMismatchError(pathID, bodyID string) *APIError {
	return &APIError{
		Code:     ErrCodeResourceIDMismatch,
		Message:  fmt.Sprintf("リソースIDが一致しません: path=%s body=%s", pathID, bodyID),
		Category: "validation",
		Action:   "URLとリクエストボディのresourceIdを揃えてください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "import",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "フィードの解析に失敗しました。",
		Category: "import",
		Action:   "有効なRSS/Atomフィードかどうか確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
