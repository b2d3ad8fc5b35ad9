package detail

import (
	"context"
	"log/slog"
	"sync"
)

// Loader はリソースIDを受け取り、リソースを1回だけ読み込む状態機械。
// ポーリングや自動リトライは行わない。
type Loader struct {
	fetcher  ResourceFetcher
	slot     *Slot
	logger   *slog.Logger
	metrics  OutcomeRecorder // nilの場合は記録しない
	onChange func()          // 状態確定後にロック外で呼ばれる

	mu    sync.Mutex
	gen   uint64
	state LoaderState
}

// NewLoader はLoaderの新しいインスタンスを生成する。初期状態はLoading。
func NewLoader(fetcher ResourceFetcher, slot *Slot, logger *slog.Logger, metrics OutcomeRecorder) *Loader {
	return &Loader{
		fetcher: fetcher,
		slot:    slot,
		logger:  logger,
		metrics: metrics,
		state:   LoaderState{Phase: LoaderLoading},
	}
}

// pendingLoad は発行済みで応答待ちの読み込みサイクル。
type pendingLoad struct {
	loader     *Loader
	gen        uint64
	ticket     uint64
	resourceID string
}

// Load はresourceIDのリソースを読み込み、確定した状態を返す。
// 応答待ちの間に新しい読み込みや無効化が行われた場合、結果は破棄され、
// その時点の状態がそのまま返る。
func (l *Loader) Load(ctx context.Context, resourceID string) LoaderState {
	p := l.begin(resourceID)
	l.changed()
	return p.await(ctx)
}

// State は現在の状態のコピーを返す。
func (l *Loader) State() LoaderState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// Invalidate は応答待ちのサイクルを無効化する。ビューのアンマウント時に使う。
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
}

// begin は新しい世代を発行してLoadingに遷移する。
// 以前のエラー・NotFoundと表示中のリソースはここでクリアされる。
func (l *Loader) begin(resourceID string) *pendingLoad {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	ticket := l.slot.ticket()
	l.slot.write(ticket, nil)
	l.state = LoaderState{Phase: LoaderLoading, ResourceID: resourceID}

	return &pendingLoad{
		loader:     l,
		gen:        l.gen,
		ticket:     ticket,
		resourceID: resourceID,
	}
}

// await は読み取りリクエストを1回発行し、世代が最新であれば結果を反映する。
func (p *pendingLoad) await(ctx context.Context) LoaderState {
	l := p.loader

	res, err := l.fetcher.GetResource(ctx, p.resourceID)

	l.mu.Lock()
	if p.gen != l.gen {
		st := l.snapshot()
		l.mu.Unlock()
		l.logger.Debug("古い読み込み結果を破棄しました",
			slog.String("resource_id", p.resourceID),
		)
		l.record(OutcomeStale)
		return st
	}

	var outcome string
	switch {
	case err == nil:
		// 後からトリガーされた投稿が既に反映済みの場合は書き込まず、そちらを表示し続ける。
		l.slot.write(p.ticket, res)
		l.state = LoaderState{Phase: LoaderLoaded, ResourceID: p.resourceID}
		outcome = OutcomeLoaded
	case !l.slot.write(p.ticket, nil):
		// 後からトリガーされた投稿の結果が表示を所有している。
		// 読み込みの失敗は破棄し、表示中のリソースと矛盾しないようLoadedとして扱う。
		l.state = LoaderState{Phase: LoaderLoaded, ResourceID: p.resourceID}
		outcome = OutcomeStale
	default:
		notFound, failure := classify(err)
		if notFound {
			l.state = LoaderState{Phase: LoaderNotFound, ResourceID: p.resourceID}
			outcome = OutcomeNotFound
		} else {
			l.state = LoaderState{Phase: LoaderError, ResourceID: p.resourceID, Failure: failure}
			outcome = OutcomeError
		}
	}
	st := l.snapshot()
	l.mu.Unlock()

	switch outcome {
	case OutcomeError:
		l.logger.Error("リソースの読み込みに失敗しました",
			slog.String("resource_id", p.resourceID),
			slog.String("kind", st.Failure.Kind.String()),
			slog.Int("http_status", st.Failure.StatusCode),
			slog.String("error", err.Error()),
		)
	default:
		l.logger.Info("リソースの読み込みが完了しました",
			slog.String("resource_id", p.resourceID),
			slog.String("phase", st.Phase.String()),
		)
	}

	l.record(outcome)
	l.changed()
	return st
}

// snapshot は呼び出し側がmuを保持している前提で状態のコピーを返す。
// Loaded中のリソースはSlotから読むため、投稿による置き換えも反映される。
func (l *Loader) snapshot() LoaderState {
	st := l.state
	st.Resource = nil
	if st.Phase == LoaderLoaded {
		st.Resource = l.slot.Current()
	}
	if st.Failure != nil {
		f := *st.Failure
		st.Failure = &f
	}
	return st
}

func (l *Loader) record(outcome string) {
	if l.metrics != nil {
		l.metrics.RecordLoadOutcome(outcome)
	}
}

func (l *Loader) changed() {
	if l.onChange != nil {
		l.onChange()
	}
}
