// Package detail はリソース詳細ビューの非同期状態機械を提供する。
//
// Loader はリソースIDごとに1回だけ読み取りリクエストを発行し、
// Loading → Loaded / NotFound / Error の順に遷移する。
// Submitter はフィードバックを1回だけ投稿し、
// Idle → Submitting → Applied / Error の順に遷移する。
// 両者は Slot（表示中のリソース）を共有し、View がそれらを束ねて観測者に通知する。
//
// 各トリガーは世代トークンを発行し、応答が返った時点で世代が古ければ
// 結果を状態に反映せずに破棄する。ネットワーク呼び出し自体は中断しない。
package detail

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/rescat/internal/catalog"
	"github.com/hitoshi/rescat/internal/model"
)

// ResourceFetcher はリソースを1件取得するリポジトリのインターフェース。
// 404はcatalog.ErrNotFound、その他の非2xxは*catalog.ResponseErrorで返すこと。
type ResourceFetcher interface {
	GetResource(ctx context.Context, resourceID string) (*model.Resource, error)
}

// FeedbackPoster はフィードバックを投稿するリポジトリのインターフェース。
// 成功時は新しいフィードバックを含む更新後のリソースを返す。
type FeedbackPoster interface {
	SubmitFeedback(ctx context.Context, resourceID string, sub model.FeedbackSubmission) (*model.Resource, error)
}

// Repository はViewが必要とするリポジトリ操作をまとめたインターフェース。
// catalog.Client がこれを実装する。
type Repository interface {
	ResourceFetcher
	FeedbackPoster
}

// LoaderPhase はLoaderの状態を表す。
type LoaderPhase int

const (
	// LoaderLoading は読み取りリクエストの応答待ち。初期状態。
	LoaderLoading LoaderPhase = iota
	// LoaderLoaded はリソースの取得に成功した状態。
	LoaderLoaded
	// LoaderNotFound はリポジトリがリソースの不存在を返した状態。
	LoaderNotFound
	// LoaderError は通信失敗または非2xx応答の状態。
	LoaderError
)

// String はフェーズ名を返す。
func (p LoaderPhase) String() string {
	switch p {
	case LoaderLoading:
		return "loading"
	case LoaderLoaded:
		return "loaded"
	case LoaderNotFound:
		return "not_found"
	case LoaderError:
		return "error"
	default:
		return fmt.Sprintf("LoaderPhase(%d)", int(p))
	}
}

// SubmitPhase はSubmitterの状態を表す。
type SubmitPhase int

const (
	// SubmitIdle は入力受付中。初期状態。
	SubmitIdle SubmitPhase = iota
	// SubmitSubmitting は投稿リクエストの応答待ち。
	SubmitSubmitting
	// SubmitApplied は投稿が成功し、更新後のリソースが反映された状態。
	SubmitApplied
	// SubmitError は投稿に失敗した状態。入力は保持される。
	SubmitError
)

// String はフェーズ名を返す。
func (p SubmitPhase) String() string {
	switch p {
	case SubmitIdle:
		return "idle"
	case SubmitSubmitting:
		return "submitting"
	case SubmitApplied:
		return "applied"
	case SubmitError:
		return "error"
	default:
		return fmt.Sprintf("SubmitPhase(%d)", int(p))
	}
}

// FailureKind は失敗の分類。
type FailureKind int

const (
	// TransportFailure はレスポンスを受け取れなかった失敗。
	TransportFailure FailureKind = iota
	// ResponseFailure は非2xx応答、または解析できない応答。
	ResponseFailure
)

// String は分類名を返す。
func (k FailureKind) String() string {
	if k == ResponseFailure {
		return "response"
	}
	return "transport"
}

// Failure はError状態が保持する失敗の詳細。
// ビューが通信層の内部を調べなくても表示できるだけの情報を持つ。
type Failure struct {
	Kind       FailureKind
	StatusCode int    // ResponseFailureの場合のみ
	StatusText string // ResponseFailureの場合のみ
	Message    string
}

// transportFailureMessage は通信失敗時の汎用メッセージ。
const transportFailureMessage = "リソースリポジトリに接続できませんでした。バックエンドが起動しているか確認してください。"

// classify はリポジトリのエラーをNotFoundまたはFailureに変換する。
func classify(err error) (notFound bool, failure *Failure) {
	if errors.Is(err, catalog.ErrNotFound) {
		return true, nil
	}

	var respErr *catalog.ResponseError
	if errors.As(err, &respErr) {
		msg := respErr.Error()
		if respErr.APIError != nil && respErr.APIError.Message != "" {
			msg = respErr.APIError.Message
		}
		return false, &Failure{
			Kind:       ResponseFailure,
			StatusCode: respErr.StatusCode,
			StatusText: respErr.StatusText,
			Message:    msg,
		}
	}

	return false, &Failure{
		Kind:    TransportFailure,
		Message: fmt.Sprintf("%s (%v)", transportFailureMessage, err),
	}
}

// LoaderState はLoaderの現在の状態。
type LoaderState struct {
	Phase      LoaderPhase
	ResourceID string
	Resource   *model.Resource // LoaderLoadedの場合のみ
	Failure    *Failure        // LoaderErrorの場合のみ
}

// SubmitState はSubmitterの現在の状態。
type SubmitState struct {
	Phase    SubmitPhase
	Resource *model.Resource // SubmitAppliedの場合のみ
	Failure  *Failure        // SubmitErrorの場合のみ
}

// Snapshot はViewの状態のある時点のコピー。観測者に渡される。
type Snapshot struct {
	ResourceID string
	Resource   *model.Resource // 表示中のリソース。未取得・失敗時はnil
	Loader     LoaderState
	Submit     SubmitState
	Draft      string
}

// OutcomeRecorder は状態機械の結果を記録するメトリクスのインターフェース。
type OutcomeRecorder interface {
	RecordLoadOutcome(outcome string)
	RecordSubmitOutcome(outcome string)
}

// 結果のラベル
const (
	OutcomeLoaded   = "loaded"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeStale    = "stale"
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
)
