package detail

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/rescat/internal/model"
)

// ErrValidationRejected は空のフィードバックが同期的に拒否されたことを示す。
// errors.Is で判定する。拒否時はリクエストを発行せず、状態も変えない。
var ErrValidationRejected error = model.ErrEmptyFeedback

// Submitter はフィードバックを1回だけ投稿する状態機械。
// ユーザー操作でのみ呼ばれ、自動リトライは行わない。
type Submitter struct {
	poster    FeedbackPoster
	slot      *Slot
	logger    *slog.Logger
	metrics   OutcomeRecorder // nilの場合は記録しない
	userID    string
	now       func() time.Time
	onChange  func()
	onApplied func(gen uint64, text string, res *model.Resource) // Applied確定後にロック外で呼ばれる

	mu    sync.Mutex
	gen   uint64
	state SubmitState
}

// NewSubmitter はSubmitterの新しいインスタンスを生成する。初期状態はIdle。
// userIDが空の場合は固定値model.AnonymousUserIDを使う。
func NewSubmitter(poster FeedbackPoster, slot *Slot, logger *slog.Logger, metrics OutcomeRecorder, userID string) *Submitter {
	if userID == "" {
		userID = model.AnonymousUserID
	}
	return &Submitter{
		poster:  poster,
		slot:    slot,
		logger:  logger,
		metrics: metrics,
		userID:  userID,
		now:     time.Now,
		state:   SubmitState{Phase: SubmitIdle},
	}
}

// pendingSubmit は発行済みで応答待ちの投稿サイクル。
type pendingSubmit struct {
	submitter  *Submitter
	gen        uint64
	ticket     uint64
	resourceID string
	text       string // 投稿時の入力そのまま
	sub        model.FeedbackSubmission
}

// Submit はtextをresourceIDのフィードバックとして投稿し、確定した状態を返す。
// 前後の空白を除いたtextが空の場合は*model.APIError（ErrValidationRejected）を返し、
// リクエストは発行しない。
func (s *Submitter) Submit(ctx context.Context, resourceID, text string) (SubmitState, error) {
	p, err := s.begin(resourceID, text)
	if err != nil {
		return s.State(), err
	}
	s.changed()
	return p.await(ctx), nil
}

// State は現在の状態のコピーを返す。
func (s *Submitter) State() SubmitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Reset は応答待ちの投稿を無効化してIdleに戻す。
// リソースIDの切り替えやアンマウント時に使う。
func (s *Submitter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = SubmitState{Phase: SubmitIdle}
}

// begin は入力を検証し、新しい世代を発行してSubmittingに遷移する。
// 以前の投稿エラーはここでクリアされる。
func (s *Submitter) begin(resourceID, text string) (*pendingSubmit, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		s.record(OutcomeRejected)
		s.logger.Info("空のフィードバックを拒否しました",
			slog.String("resource_id", resourceID),
		)
		return nil, model.NewEmptyFeedbackError()
	}
	if resourceID == "" {
		return nil, model.NewInvalidResourceIDError()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.state = SubmitState{Phase: SubmitSubmitting}

	return &pendingSubmit{
		submitter:  s,
		gen:        s.gen,
		ticket:     s.slot.ticket(),
		resourceID: resourceID,
		text:       text,
		sub: model.FeedbackSubmission{
			ResourceID:   resourceID,
			FeedbackText: trimmed,
			UserID:       s.userID,
			Timestamp:    s.now().UTC(),
		},
	}, nil
}

// await は投稿リクエストを1回発行し、世代が最新であれば結果を反映する。
func (p *pendingSubmit) await(ctx context.Context) SubmitState {
	s := p.submitter

	res, err := s.poster.SubmitFeedback(ctx, p.resourceID, p.sub)

	s.mu.Lock()
	if p.gen != s.gen {
		st := s.snapshot()
		s.mu.Unlock()
		s.logger.Debug("古い投稿結果を破棄しました",
			slog.String("resource_id", p.resourceID),
		)
		s.record(OutcomeStale)
		return st
	}

	var outcome string
	switch {
	case err != nil:
		notFound, failure := classify(err)
		if notFound {
			failure = &Failure{
				Kind:       ResponseFailure,
				StatusCode: http.StatusNotFound,
				StatusText: http.StatusText(http.StatusNotFound),
				Message:    model.NewResourceNotFoundError(p.resourceID).Message,
			}
		}
		s.state = SubmitState{Phase: SubmitError, Failure: failure}
		outcome = OutcomeError
	case !s.slot.write(p.ticket, res):
		// 後からトリガーされた読み込みが表示を所有している。
		s.state = SubmitState{Phase: SubmitIdle}
		outcome = OutcomeStale
	default:
		s.state = SubmitState{Phase: SubmitApplied, Resource: res.Clone()}
		outcome = OutcomeApplied
	}
	st := s.snapshot()
	s.mu.Unlock()

	switch outcome {
	case OutcomeError:
		s.logger.Error("フィードバックの送信に失敗しました",
			slog.String("resource_id", p.resourceID),
			slog.String("kind", st.Failure.Kind.String()),
			slog.Int("http_status", st.Failure.StatusCode),
			slog.String("error", err.Error()),
		)
	case OutcomeApplied:
		s.logger.Info("フィードバックを送信しました",
			slog.String("resource_id", p.resourceID),
			slog.Int("feedback_count", res.FeedbackCount()),
		)
		if s.onApplied != nil {
			s.onApplied(p.gen, p.text, res.Clone())
		}
	}

	s.record(outcome)
	s.changed()
	return st
}

// current はgenが最新の投稿サイクルかどうかを返す。
// Reset・後続の投稿で世代が進んでいればfalse。
func (s *Submitter) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// snapshot は呼び出し側がmuを保持している前提で状態のコピーを返す。
func (s *Submitter) snapshot() SubmitState {
	st := s.state
	st.Resource = st.Resource.Clone()
	if st.Failure != nil {
		f := *st.Failure
		st.Failure = &f
	}
	return st
}

func (s *Submitter) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmitOutcome(outcome)
	}
}

func (s *Submitter) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
