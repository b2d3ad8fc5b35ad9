package detail

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/rescat/internal/model"
)

// --- テスト用モック ---

// mockRepo は関数フィールドで振る舞いを差し替えられるRepositoryモック。
type mockRepo struct {
	mu       sync.Mutex
	getIDs   []string
	posts    []model.FeedbackSubmission
	getFn    func(ctx context.Context, resourceID string) (*model.Resource, error)
	submitFn func(ctx context.Context, resourceID string, sub model.FeedbackSubmission) (*model.Resource, error)
}

func (m *mockRepo) GetResource(ctx context.Context, resourceID string) (*model.Resource, error) {
	m.mu.Lock()
	m.getIDs = append(m.getIDs, resourceID)
	m.mu.Unlock()
	if m.getFn != nil {
		return m.getFn(ctx, resourceID)
	}
	return newTestResource(resourceID, 0), nil
}

func (m *mockRepo) SubmitFeedback(ctx context.Context, resourceID string, sub model.FeedbackSubmission) (*model.Resource, error) {
	m.mu.Lock()
	m.posts = append(m.posts, sub)
	m.mu.Unlock()
	if m.submitFn != nil {
		return m.submitFn(ctx, resourceID, sub)
	}
	return newTestResource(resourceID, 1), nil
}

func (m *mockRepo) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.getIDs)
}

func (m *mockRepo) postCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

func (m *mockRepo) lastPost() model.FeedbackSubmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts[len(m.posts)-1]
}

// reply はゲート付きリポジトリの呼び出しに返す結果。
type reply struct {
	res *model.Resource
	err error
}

// pendingCall はゲート付きリポジトリで応答待ちになっている呼び出し。
type pendingCall struct {
	resourceID string
	sub        model.FeedbackSubmission
	reply      chan reply
}

func (c *pendingCall) respond(res *model.Resource, err error) {
	c.reply <- reply{res: res, err: err}
}

// gatedRepo はテストが応答を返すまで呼び出しをブロックするRepository。
// 応答の順序をテスト側で制御するために使う。
type gatedRepo struct {
	gets  chan *pendingCall
	posts chan *pendingCall
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{
		gets:  make(chan *pendingCall),
		posts: make(chan *pendingCall),
	}
}

func (g *gatedRepo) GetResource(_ context.Context, resourceID string) (*model.Resource, error) {
	c := &pendingCall{resourceID: resourceID, reply: make(chan reply, 1)}
	g.gets <- c
	r := <-c.reply
	return r.res, r.err
}

func (g *gatedRepo) SubmitFeedback(_ context.Context, resourceID string, sub model.FeedbackSubmission) (*model.Resource, error) {
	c := &pendingCall{resourceID: resourceID, sub: sub, reply: make(chan reply, 1)}
	g.posts <- c
	r := <-c.reply
	return r.res, r.err
}

// --- ヘルパー ---

const testTimeout = 2 * time.Second

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestResource(id string, feedbackCount int) *model.Resource {
	rating := 4.0
	res := &model.Resource{
		ID:            id,
		Title:         "Resource " + id,
		Type:          "Video",
		Description:   "description of " + id,
		CreatedAt:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		AverageRating: &rating,
		Feedback:      []model.Feedback{},
	}
	for i := 0; i < feedbackCount; i++ {
		res.Feedback = append(res.Feedback, model.Feedback{
			ID:           id + "-f" + string(rune('1'+i)),
			ResourceID:   id,
			FeedbackText: "feedback " + string(rune('1'+i)),
			UserID:       model.AnonymousUserID,
			Timestamp:    time.Date(2025, 1, 3, 0, i, 0, 0, time.UTC),
		})
	}
	return res
}

// withFeedback はresにtextのフィードバックを1件追加したコピーを返す。
func withFeedback(res *model.Resource, text string) *model.Resource {
	c := res.Clone()
	c.Feedback = append(c.Feedback, model.Feedback{
		ID:           c.ID + "-new",
		ResourceID:   c.ID,
		FeedbackText: text,
		UserID:       model.AnonymousUserID,
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	return c
}

// async はfnを別goroutineで実行し、完了を通知するチャネルを返す。
func async(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("処理が完了しなかった")
	}
}

func nextCall(t *testing.T, ch <-chan *pendingCall) *pendingCall {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(testTimeout):
		t.Fatal("リポジトリ呼び出しが発行されなかった")
		return nil
	}
}

// mockOutcomes はOutcomeRecorderのモック実装。
type mockOutcomes struct {
	mu      sync.Mutex
	loads   []string
	submits []string
}

func (m *mockOutcomes) RecordLoadOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads = append(m.loads, outcome)
}

func (m *mockOutcomes) RecordSubmitOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits = append(m.submits, outcome)
}

func (m *mockOutcomes) countLoads(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countOf(m.loads, outcome)
}

func (m *mockOutcomes) countSubmits(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countOf(m.submits, outcome)
}

func countOf(list []string, outcome string) int {
	n := 0
	for _, o := range list {
		if o == outcome {
			n++
		}
	}
	return n
}
