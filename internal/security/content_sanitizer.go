// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はフィードバック本文やインポートしたリソースの説明文から
// マークアップを取り除き、プレーンテキストとして保存できる形にする。
// bluemondayのStrictPolicyで全てのタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
// フィードバックの保存前とフィードインポート時に使用される。
type ContentSanitizerService interface {
	// SanitizeText は全てのHTMLタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	// script、styleなどの要素は中身ごと除去される。
	// 文字参照は元の文字に戻す（"&amp;" → "&"）。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLを除去したプレーンテキストを返す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyは残したテキストをエスケープするため、保存用に戻す
	text := html.UnescapeString(stripped)
	return strings.TrimSpace(text)
}
