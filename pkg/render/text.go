package render

import (
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// TextFile はパッケージに同梱するテキスト版のファイル名です。
const TextFile = "index.md"

// ToText はレンダリング済みHTMLを、テキストメール用のMarkdownに変換します。
func ToText(html string) (string, error) {
	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("テキスト版への変換に失敗しました: %w", err)
	}
	return markdown, nil
}
