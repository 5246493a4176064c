package imageref

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Fetcher は、リモート画像の生バイト配列を取得する機能のインターフェースです。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Resolver は画像参照をローカルファイル、または data URI に正規化します。
type Resolver struct {
	fetcher Fetcher
}

// NewResolver は、新しいResolverのインスタンスを生成します。
func NewResolver(fetcher Fetcher) (*Resolver, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("imageref.NewResolver: Fetcher cannot be nil")
	}
	return &Resolver{fetcher: fetcher}, nil
}

// Resolve は value を destDir 配下のローカルファイルに実体化します。
//
// 成功時は (保存したファイル名, 保存先のフルパス, nil) を返します。
// Opaque な値は (value, "", nil) をそのまま返し、ファイルは作成しません。
// 失敗時は (value, "", err) を返します。失敗は致命的ではなく、呼び出し側が警告として扱います。
func (r *Resolver) Resolve(ctx context.Context, value, destDir, fallbackName string) (finalValue, localPath string, err error) {
	ref := Classify(value)

	switch ref.Kind {
	case KindRemoteURL:
		localPath, err = r.download(ctx, ref.Raw, destDir, fallbackName)
	case KindInlineData:
		localPath, err = saveInlineData(ref.Raw, destDir, fallbackName)
	default:
		return value, "", nil
	}

	if err != nil {
		return value, "", err
	}
	return filepath.Base(localPath), localPath, nil
}

// ResolveToEmbedded は value を data URI 形式に変換します。
// リモートURLは workDir に一度保存してから埋め込みます。data URI と Opaque な値はそのまま返します。
// 失敗時は元の値とエラーを返します。
func (r *Resolver) ResolveToEmbedded(ctx context.Context, value, workDir, fallbackName string) (string, error) {
	if Classify(value).Kind != KindRemoteURL {
		return value, nil
	}

	_, localPath, err := r.Resolve(ctx, value, workDir, fallbackName)
	if err != nil {
		return value, err
	}

	embedded, err := EmbedFile(localPath)
	if err != nil {
		return value, err
	}
	return embedded, nil
}

func (r *Resolver) download(ctx context.Context, rawURL, destDir, fallbackName string) (string, error) {
	body, err := r.fetcher.FetchBytes(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("画像のダウンロードに失敗しました (URL: %s): %w", rawURL, err)
	}

	name := remoteFilename(rawURL)
	if name == "" {
		name = fallbackName
	}
	return writeAsset(destDir, name, body)
}

func saveInlineData(raw, destDir, fallbackName string) (string, error) {
	data, err := ParseInlineData(raw)
	if err != nil {
		return "", err
	}
	return writeAsset(destDir, fallbackName+"."+data.Extension(), data.Data)
}

func writeAsset(destDir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("保存先ディレクトリ(%s)の作成に失敗しました: %w", destDir, err)
	}
	dest := filepath.Join(destDir, name)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("画像ファイル(%s)の書き込みに失敗しました: %w", dest, err)
	}
	return dest, nil
}

// ----------------------------------------------------------------------
// レンダリング済みHTML内のローカル参照の埋め込み
// ----------------------------------------------------------------------

// srcAttrPattern は src="..." / src='...' を1回の正規表現走査で拾います。
// HTMLの構造は解析しないため、属性以外の位置にある同じ文字列にも一致し得ます。
var srcAttrPattern = regexp.MustCompile(`src=["'](.*?)["']`)

// InlineLocalReferences は html 内の src 属性のうち、baseDir 配下に実在するファイルを指すものを
// data URI に置き換えます。data URI 済みの値、存在しないファイル、baseDir の外を指すパスは変更しません。
// 置き換えるのは属性値 (引用符の内側) だけです。
func InlineLocalReferences(html, baseDir string) string {
	matches := srcAttrPattern.FindAllStringSubmatchIndex(html, -1)
	if len(matches) == 0 {
		return html
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		// m[2]:m[3] は引用符内の値
		start, end := m[2], m[3]
		embedded, ok := embedLocal(html[start:end], baseDir)
		if !ok {
			continue
		}
		b.WriteString(html[last:start])
		b.WriteString(embedded)
		last = end
	}
	b.WriteString(html[last:])
	return b.String()
}

// embedLocal は src の値が baseDir 配下の通常ファイルを指していれば、その data URI を返します。
func embedLocal(src, baseDir string) (string, bool) {
	if src == "" || Classify(src).Kind == KindInlineData || !filepath.IsLocal(src) {
		return "", false
	}

	filePath := filepath.Join(baseDir, filepath.FromSlash(src))
	info, err := os.Stat(filePath)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}

	embedded, err := EmbedFile(filePath)
	if err != nil {
		return "", false
	}
	return embedded, true
}

// IsMalformed は err が data URI の形式エラーに由来するかを判定します。
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedInlineData)
}
