package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/shouni/go-mail-packager/pkg/types"
)

// ErrNothingExtracted は、ページは取得できたが、どのセレクターにも一致しなかったことを示します。
var ErrNothingExtracted = errors.New("webページから何も抽出できませんでした")

// Extractor は、Fetcher を使ってページから固定の3項目 (タイトル・画像・リード文) を抽出します。
type Extractor struct {
	fetcher Fetcher
}

// NewExtractor は、新しいExtractorのインスタンスを生成します。
func NewExtractor(fetcher Fetcher) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("extract.NewExtractor: Fetcher cannot be nil")
	}
	return &Extractor{
		fetcher: fetcher,
	}, nil
}

// ----------------------------------------------------------------------
// 定数定義 (解析関連のみ)
// ----------------------------------------------------------------------
const (
	titleSelector   = "h1"
	imageSelector   = "div.entry-image > img"
	leadSelector    = "div.entry-lead"
	articleSelector = "div.article__content"
)

var (
	titleMatcher   = cascadia.MustCompile(titleSelector)
	imageMatcher   = cascadia.MustCompile(imageSelector)
	leadMatcher    = cascadia.MustCompile(leadSelector)
	articleMatcher = cascadia.MustCompile(articleSelector)
)

// ----------------------------------------------------------------------
// メイン関数 (メソッド化)
// ----------------------------------------------------------------------

// Extract は指定されたURLのページを取得し、ScrapedFields を返します。
// 取得・解析に失敗した場合でも、常に空文字列で埋められた ScrapedFields を返し、
// 失敗の理由は error として呼び出し側に通知します (致命的ではありません)。
func (e *Extractor) Extract(ctx context.Context, url string) (types.ScrapedFields, error) {
	// 1. Fetcherから生のバイト配列を取得 (通信の責務)
	htmlBytes, err := e.fetcher.FetchBytes(ctx, url)
	if err != nil {
		return types.ScrapedFields{}, fmt.Errorf("ページの取得に失敗しました (URL: %s): %w", url, err)
	}

	// 2. 文字コードを UTF-8 に揃えてから goquery.Document に変換 (解析の責務)
	doc, err := parseDocument(htmlBytes)
	if err != nil {
		return types.ScrapedFields{}, fmt.Errorf("HTML解析に失敗しました (URL: %s): %w", url, err)
	}

	fields := ExtractFields(doc)
	if fields == (types.ScrapedFields{}) {
		return fields, fmt.Errorf("%w (URL: %s)", ErrNothingExtracted, url)
	}
	return fields, nil
}

// ExtractFields は goquery.Document から3項目を抽出します。
// 見つからない項目は空文字列になります。
func ExtractFields(doc *goquery.Document) types.ScrapedFields {
	var fields types.ScrapedFields

	// 1. タイトル: 文書順で最初の h1
	if h1 := doc.FindMatcher(titleMatcher).First(); h1.Length() > 0 {
		fields.Title = joinText(h1, "")
	}

	// 2. 画像: コンテンツブロック直下の img の src
	if img := doc.FindMatcher(imageMatcher).First(); img.Length() > 0 {
		fields.ImageRef = img.AttrOr("src", "")
	}

	// 3. リード文: リード専用コンテナ → 記事本文の順にフォールバック
	var lead string
	if leadSel := doc.FindMatcher(leadMatcher).First(); leadSel.Length() > 0 {
		lead = joinText(leadSel, "")
	} else if article := doc.FindMatcher(articleMatcher).First(); article.Length() > 0 {
		lead = joinText(article, " ")
	}
	fields.Lead = truncate(lead, types.MaxLeadLength)

	return fields
}

// parseDocument は、宣言された文字コードを判定して UTF-8 に変換したうえで HTML を解析します。
func parseDocument(body []byte) (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), "")
	if err != nil {
		// 判定できない場合はそのまま解析する
		reader = bytes.NewReader(body)
	}
	return goquery.NewDocumentFromReader(reader)
}

// ParseHTML は io.Reader から HTML を解析します。テストやオフライン処理用です。
func ParseHTML(r io.Reader) (*goquery.Document, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("HTMLの読み込みに失敗しました: %w", err)
	}
	return parseDocument(body)
}

// joinText は、選択範囲の最初の要素の子孫テキストノードを、前後の空白を除去してから sep で連結します。
// 空白のみのテキストノードは無視されます。
func joinText(s *goquery.Selection, sep string) string {
	if s.Length() == 0 {
		return ""
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(s.Get(0))

	return strings.Join(parts, sep)
}

// truncate は文字 (rune) 単位で先頭 max 文字に切り詰めます。単語境界は考慮しません。
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
