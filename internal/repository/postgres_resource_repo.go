package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/rescat/internal/model"
)

// PostgresResourceRepo はPostgreSQLを使用したリソースリポジトリ。
type PostgresResourceRepo struct {
	db *sql.DB
}

// NewPostgresResourceRepo はPostgresResourceRepoを生成する。
func NewPostgresResourceRepo(db *sql.DB) *PostgresResourceRepo {
	return &PostgresResourceRepo{db: db}
}

const selectResourceColumns = `SELECT id, title, type, description, author_id, average_rating, created_at FROM resources`

// List は全リソースを作成順で取得する。
func (r *PostgresResourceRepo) List(ctx context.Context) ([]model.Resource, error) {
	rows, err := r.db.QueryContext(ctx, selectResourceColumns+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("リソース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var resources []model.Resource
	var ids []string
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("リソースのスキャンに失敗しました: %w", err)
		}
		resources = append(resources, *res)
		ids = append(ids, res.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リソース一覧の読み取りに失敗しました: %w", err)
	}

	if len(ids) == 0 {
		return []model.Resource{}, nil
	}

	byResource, err := listFeedback(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range resources {
		resources[i].Feedback = byResource[resources[i].ID]
	}
	return resources, nil
}

// FindByID は指定IDのリソースを取得する。見つからない場合はnilを返す。
func (r *PostgresResourceRepo) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	return findResource(ctx, r.db, id)
}

// Create はリソースを作成する。
func (r *PostgresResourceRepo) Create(ctx context.Context, res *model.Resource, sourceURL string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resources (id, title, type, description, author_id, source_url,
		                        average_rating, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		res.ID, res.Title, res.Type, res.Description,
		nullString(res.AuthorID), nullString(sourceURL),
		nullFloat(res.AverageRating), res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("リソースの作成に失敗しました: %w", err)
	}
	return nil
}

// ExistsBySourceURL はインポート元URLが同じリソースが存在するかを返す。
func (r *PostgresResourceRepo) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM resources WHERE source_url = $1)`,
		sourceURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("インポート元URLの確認に失敗しました: %w", err)
	}
	return exists, nil
}

// AddFeedback はフィードバックを追加し、同一トランザクション内で再読み込みしたリソースを返す。
func (r *PostgresResourceRepo) AddFeedback(ctx context.Context, fb *model.Feedback) (*model.Resource, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 同時投稿中の削除を防ぐため行ロックを取る
	var locked string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM resources WHERE id = $1 FOR UPDATE`, fb.ResourceID,
	).Scan(&locked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リソースのロックに失敗しました: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feedback (id, resource_id, feedback_text, user_id, submitted_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		fb.ID, fb.ResourceID, fb.FeedbackText, fb.UserID, fb.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("フィードバックの追加に失敗しました: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE resources SET updated_at = now() WHERE id = $1`, fb.ResourceID,
	); err != nil {
		return nil, fmt.Errorf("リソースの更新に失敗しました: %w", err)
	}

	res, err := findResource(ctx, tx, fb.ResourceID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

// findResource はリソースとフィードバックを取得する。見つからない場合はnilを返す。
func findResource(ctx context.Context, q queryer, id string) (*model.Resource, error) {
	res, err := scanResource(q.QueryRowContext(ctx, selectResourceColumns+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リソースの取得に失敗しました: %w", err)
	}

	byResource, err := listFeedback(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	res.Feedback = byResource[id]
	return res, nil
}

// listFeedback は指定リソースのフィードバックを投稿順で取得する。
// フィードバックのないリソースにも空スライスを割り当てる。
func listFeedback(ctx context.Context, q queryer, resourceIDs []string) (map[string][]model.Feedback, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, resource_id, feedback_text, user_id, submitted_at
		 FROM feedback WHERE resource_id = ANY($1)
		 ORDER BY seq ASC`,
		pq.Array(resourceIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("フィードバックの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	byResource := make(map[string][]model.Feedback, len(resourceIDs))
	for _, id := range resourceIDs {
		byResource[id] = []model.Feedback{}
	}
	for rows.Next() {
		var fb model.Feedback
		if err := rows.Scan(&fb.ID, &fb.ResourceID, &fb.FeedbackText, &fb.UserID, &fb.Timestamp); err != nil {
			return nil, fmt.Errorf("フィードバックのスキャンに失敗しました: %w", err)
		}
		fb.Timestamp = fb.Timestamp.UTC()
		byResource[fb.ResourceID] = append(byResource[fb.ResourceID], fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィードバックの読み取りに失敗しました: %w", err)
	}
	return byResource, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(s rowScanner) (*model.Resource, error) {
	res := &model.Resource{}
	var authorID sql.NullString
	var rating sql.NullFloat64
	if err := s.Scan(&res.ID, &res.Title, &res.Type, &res.Description, &authorID, &rating, &res.CreatedAt); err != nil {
		return nil, err
	}
	res.AuthorID = nullStringValue(authorID)
	if rating.Valid {
		v := rating.Float64
		res.AverageRating = &v
	}
	res.CreatedAt = res.CreatedAt.UTC()
	return res, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullFloat はnilをsql.NullFloat64に変換する。
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
