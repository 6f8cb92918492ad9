// Package security はユーザー入力の無害化とURL検証を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザーが入力したプレーンテキストからHTMLを取り除く。
// 保存済みのテキストをHTMLとして表示される場所(RSSのtitle, description)へ出力する前に適用する。
type TextSanitizer interface {
	// Sanitize はすべてのタグを除去し、前後の空白を取り除いたテキストを返す。
	// script, styleは要素の内容ごと除去する。
	Sanitize(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使用するTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses は実体参照の展開で新たなタグが現れる入力に対する再適用の上限。
const maxSanitizePasses = 4

// Sanitize はタグを除去したテキストを返す。
// JSONで返すため、bluemondayがエスケープした実体参照は元の文字に戻す。
// 展開結果が再びタグを含む場合は変化がなくなるまで繰り返す。
func (s *textSanitizer) Sanitize(raw string) string {
	out := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}

var _ TextSanitizer = (*textSanitizer)(nil)
