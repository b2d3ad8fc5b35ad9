package detail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/rescat/internal/model"
)

// ErrViewClosed はアンマウント済みのViewに操作が行われたことを示す。
var ErrViewClosed = errors.New("detail view is closed")

// ViewConfig はViewの設定を保持する。
type ViewConfig struct {
	// UserID はフィードバック投稿者のID。空の場合はmodel.AnonymousUserID。
	UserID string
	// Metrics は結果の記録先。nilの場合は記録しない。
	Metrics OutcomeRecorder
	// OnFeedbackApplied は投稿が反映されるたびに更新後のリソースで呼ばれる。
	OnFeedbackApplied func(*model.Resource)
	// Now は投稿時刻の取得に使う。nilの場合はtime.Now。
	Now func() time.Time
}

// View はリソース詳細ビュー1つ分の状態を保持する。
// Loader・Submitter・表示中リソースのSlot・入力中の下書きを束ね、
// 状態が変わるたびに観測者へSnapshotを通知する。
type View struct {
	slot      *Slot
	loader    *Loader
	submitter *Submitter
	logger    *slog.Logger

	mu                sync.Mutex
	resourceID        string
	shown             bool
	closed            bool
	draft             string
	observers         []func(Snapshot)
	onFeedbackApplied func(*model.Resource)
}

// NewView はViewの新しいインスタンスを生成する。
func NewView(repo Repository, logger *slog.Logger, cfg ViewConfig) *View {
	slot := NewSlot()
	v := &View{
		slot:              slot,
		loader:            NewLoader(repo, slot, logger, cfg.Metrics),
		submitter:         NewSubmitter(repo, slot, logger, cfg.Metrics, cfg.UserID),
		logger:            logger,
		onFeedbackApplied: cfg.OnFeedbackApplied,
	}
	if cfg.Now != nil {
		v.submitter.now = cfg.Now
	}
	v.loader.onChange = v.notify
	v.submitter.onChange = v.notify
	v.submitter.onApplied = v.handleApplied
	return v
}

// Show はビューにリソースIDを与え、新しい読み込みサイクルを開始する。
// IDが現在表示中のものと同じ場合は何もせず現在の状態を返す。
// IDが変わった場合は応答待ちの投稿を無効化し、下書きを破棄する。
func (v *View) Show(ctx context.Context, resourceID string) (LoaderState, error) {
	if resourceID == "" {
		return v.loader.State(), model.NewInvalidResourceIDError()
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return v.loader.State(), ErrViewClosed
	}
	if v.shown && v.resourceID == resourceID {
		v.mu.Unlock()
		return v.loader.State(), nil
	}
	v.shown = true
	v.resourceID = resourceID
	v.draft = ""
	v.submitter.Reset()
	p := v.loader.begin(resourceID)
	v.mu.Unlock()

	v.logger.Info("リソース詳細の読み込みを開始しました",
		slog.String("resource_id", resourceID),
	)
	v.notify()
	return p.await(ctx), nil
}

// SetDraft は入力中のフィードバック本文を更新する。
func (v *View) SetDraft(text string) {
	v.mu.Lock()
	v.draft = text
	v.mu.Unlock()
	v.notify()
}

// Draft は入力中のフィードバック本文を返す。
func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// SubmitDraft は現在の下書きを表示中のリソースに投稿する。
func (v *View) SubmitDraft(ctx context.Context) (SubmitState, error) {
	v.mu.Lock()
	resourceID, draft := v.resourceID, v.draft
	v.mu.Unlock()
	return v.Submit(ctx, resourceID, draft)
}

// Submit はtextをresourceIDのフィードバックとして投稿する。
// textは下書きとして保持され、投稿が反映された場合のみクリアされる。
// 空白のみのtextはErrValidationRejectedで拒否され、リクエストは発行されない。
func (v *View) Submit(ctx context.Context, resourceID, text string) (SubmitState, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return v.submitter.State(), ErrViewClosed
	}
	if resourceID != v.resourceID {
		current := v.resourceID
		v.mu.Unlock()
		return v.submitter.State(), model.NewResourceIDMismatchError(current, resourceID)
	}
	v.draft = text
	p, err := v.submitter.begin(resourceID, text)
	v.mu.Unlock()

	v.notify()
	if err != nil {
		return v.submitter.State(), err
	}
	return p.await(ctx), nil
}

// Close はビューをアンマウントする。応答待ちの結果はすべて破棄される。
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.loader.Invalidate()
	v.submitter.Reset()
	v.observers = nil
}

// Subscribe は状態変化の観測者を登録する。
// 観測者はロックの外で呼ばれ、Snapshotのコピーを受け取る。
func (v *View) Subscribe(fn func(Snapshot)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, fn)
}

// LoaderState は読み込みの現在の状態を返す。
func (v *View) LoaderState() LoaderState {
	return v.loader.State()
}

// SubmitState は投稿の現在の状態を返す。
func (v *View) SubmitState() SubmitState {
	return v.submitter.State()
}

// Resource は表示中のリソースを返す。未取得・失敗時はnil。
func (v *View) Resource() *model.Resource {
	return v.slot.Current()
}

// Snapshot は現在の状態をまとめて返す。
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	resourceID, draft := v.resourceID, v.draft
	v.mu.Unlock()

	return Snapshot{
		ResourceID: resourceID,
		Resource:   v.slot.Current(),
		Loader:     v.loader.State(),
		Submit:     v.submitter.State(),
		Draft:      draft,
	}
}

// handleApplied は投稿の反映後に下書きをクリアし、通知フックを呼ぶ。
// 応答の確定後にIDの切り替えや次の投稿があった場合は何もしない。
// 下書きは投稿時の内容から変わっていない場合のみクリアする。
func (v *View) handleApplied(gen uint64, text string, res *model.Resource) {
	v.mu.Lock()
	if v.closed || !v.submitter.current(gen) {
		v.mu.Unlock()
		v.logger.Debug("古い投稿の反映通知を破棄しました",
			slog.String("resource_id", res.ID),
		)
		return
	}
	if v.draft == text {
		v.draft = ""
	}
	hook := v.onFeedbackApplied
	v.mu.Unlock()

	if hook != nil {
		hook(res)
	}
}

// notify は観測者に現在のSnapshotを通知する。
func (v *View) notify() {
	v.mu.Lock()
	observers := make([]func(Snapshot), len(v.observers))
	copy(observers, v.observers)
	v.mu.Unlock()

	if len(observers) == 0 {
		return
	}

	snap := v.Snapshot()
	for _, fn := range observers {
		fn(snap)
	}
}
