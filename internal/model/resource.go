// Package model はドメインモデルを定義する。
package model

import "time"

// Resource はカタログに登録された閲覧対象のリソースを表す。
// JSONのフィールド名はリソースリポジトリのワイヤ形式に合わせる。
type Resource struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Type          string     `json:"type"`
	Description   string     `json:"description"`
	AuthorID      string     `json:"authorId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	AverageRating *float64   `json:"averageRating,omitempty"` // 0〜5。サーバー側で再計算される
	Feedback      []Feedback `json:"feedback"`
}

// FeedbackCount はフィードバック件数を返す。
func (r *Resource) FeedbackCount() int {
	if r == nil {
		return 0
	}
	return len(r.Feedback)
}

// Clone はフィードバック列を含めたディープコピーを返す。
// 状態スナップショットを観測者に渡す際、共有スライスの書き換えを防ぐために使う。
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	c := *r
	if r.AverageRating != nil {
		v := *r.AverageRating
		c.AverageRating = &v
	}
	if r.Feedback != nil {
		c.Feedback = make([]Feedback, len(r.Feedback))
		copy(c.Feedback, r.Feedback)
	}
	return &c
}

// Feedback はリソースに付与された1件のフィードバックを表す。
// 並び順は投稿順で、リソース内でのみIDが一意になる。
type Feedback struct {
	ID           string    `json:"id"`
	ResourceID   string    `json:"resourceId"`
	FeedbackText string    `json:"feedbackText"`
	UserID       string    `json:"userId"`
	Timestamp    time.Time `json:"timestamp"`
}

// FeedbackSubmission はフィードバック投稿リクエストのボディ。
// timestampは送信時にクライアントが付与する。
type FeedbackSubmission struct {
	ResourceID   string    `json:"resourceId"`
	FeedbackText string    `json:"feedbackText"`
	UserID       string    `json:"userId"`
	Timestamp    time.Time `json:"timestamp"`
}

// AnonymousUserID は認証がない環境で使う投稿者IDの固定値。
const AnonymousUserID = "anonymous"
