// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/rescat/internal/model"
)

// ResourceRepository はリソースとフィードバックの永続化インターフェース。
type ResourceRepository interface {
	// List は全リソースを作成順で取得する。各リソースのフィードバックも含む。
	List(ctx context.Context) ([]model.Resource, error)

	// FindByID は指定IDのリソースをフィードバック込みで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Resource, error)

	// Create はリソースを作成する。sourceURLはインポート元のURLで、空の場合は記録しない。
	Create(ctx context.Context, res *model.Resource, sourceURL string) error

	// ExistsBySourceURL はインポート元URLが同じリソースが存在するかを返す。
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)

	// AddFeedback はフィードバックを追加し、更新後のリソースを返す。
	// 追加と再読み込みは同一トランザクションで行う。
	// リソースが存在しない場合はnilを返す。
	AddFeedback(ctx context.Context, fb *model.Feedback) (*model.Resource, error)
}

// queryer は*sql.DBと*sql.Txの共通の読み取り操作。
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
