package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hitoshi/rescat/internal/detail"
	"github.com/hitoshi/rescat/internal/model"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

// Presenter はリソース詳細ビューの状態をテキストで描画する。
type Presenter struct {
	w       io.Writer
	baseURL string
}

// NewPresenter はPresenterの新しいインスタンスを生成する。
// baseURLはエラー表示時のヒントに使う。
func NewPresenter(w io.Writer, baseURL string) *Presenter {
	return &Presenter{w: w, baseURL: baseURL}
}

// RenderLoader は読み込みの状態に応じたブロックを描画する。
func (p *Presenter) RenderLoader(s detail.Snapshot) {
	switch s.Loader.Phase {
	case detail.LoaderLoading:
		fmt.Fprintf(p.w, "読み込み中: %s ...\n", s.ResourceID)
	case detail.LoaderNotFound:
		fmt.Fprintf(p.w, "リソース %q は見つかりませんでした。\n", s.ResourceID)
		fmt.Fprintln(p.w, "IDが正しいか確認してください。")
	case detail.LoaderError:
		p.renderFailure("リソースの読み込みに失敗しました", s.Loader.Failure)
	case detail.LoaderLoaded:
		p.RenderResource(s.Resource)
	}
}

// RenderSubmit は投稿の状態を1行で描画する。Idleの場合は何も出力しない。
func (p *Presenter) RenderSubmit(s detail.SubmitState) {
	switch s.Phase {
	case detail.SubmitSubmitting:
		fmt.Fprintln(p.w, "フィードバックを送信中...")
	case detail.SubmitApplied:
		fmt.Fprintf(p.w, "フィードバックを投稿しました（%d件）。\n", s.Resource.FeedbackCount())
	case detail.SubmitError:
		p.renderFailure("フィードバックの投稿に失敗しました", s.Failure)
	}
}

// RenderResource はリソースの詳細を描画する。フィードバックは新しい順に並べる。
func (p *Presenter) RenderResource(res *model.Resource) {
	if res == nil {
		return
	}

	fmt.Fprintln(p.w, res.Title)
	fmt.Fprintln(p.w, strings.Repeat("=", len([]rune(res.Title))))

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "種別:\t%s\n", orDash(res.Type))
	fmt.Fprintf(tw, "説明:\t%s\n", orDash(res.Description))
	fmt.Fprintf(tw, "作成者:\t%s\n", orDash(res.AuthorID))
	fmt.Fprintf(tw, "作成日:\t%s\n", res.CreatedAt.Format(dateLayout))
	fmt.Fprintf(tw, "評価:\t%s\n", formatRating(res.AverageRating))
	fmt.Fprintf(tw, "フィードバック:\t%d件\n", res.FeedbackCount())
	tw.Flush()

	for i := len(res.Feedback) - 1; i >= 0; i-- {
		fb := res.Feedback[i]
		fmt.Fprintf(p.w, "  - [%s] %s: %s\n", fb.Timestamp.Format(dateTimeLayout), fb.UserID, fb.FeedbackText)
	}
}

// RenderList はリソース一覧を1行1件で描画する。
func (p *Presenter) RenderList(resources []model.Resource) {
	if len(resources) == 0 {
		fmt.Fprintln(p.w, "リソースはありません。")
		return
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tRATING\tFEEDBACK")
	for i := range resources {
		res := &resources[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			res.ID, res.Title, orDash(res.Type), formatRating(res.AverageRating), res.FeedbackCount())
	}
	tw.Flush()
}

// RenderListError は一覧取得の失敗を描画する。
func (p *Presenter) RenderListError(err error) {
	fmt.Fprintf(p.w, "リソース一覧の取得に失敗しました: %v\n", err)
	p.renderHint()
}

func (p *Presenter) renderFailure(title string, f *detail.Failure) {
	if f == nil {
		fmt.Fprintf(p.w, "%s。\n", title)
		return
	}
	fmt.Fprintf(p.w, "%s: %s\n", title, f.Message)
	if f.Kind == detail.ResponseFailure {
		fmt.Fprintf(p.w, "ステータス: %d %s\n", f.StatusCode, f.StatusText)
	}
	p.renderHint()
}

func (p *Presenter) renderHint() {
	fmt.Fprintf(p.w, "ヒント: リソースリポジトリ（%s）が起動しているか確認してください。\n", p.baseURL)
}

// formatRating は平均評価を小数1桁で整形する。未評価の場合は "-"。
func formatRating(rating *float64) string {
	if rating == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f / 5", *rating)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
