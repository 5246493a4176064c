package imageref

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ----------------------------------------------------------------------
// 画像参照の分類 (タグ付きユニオン)
// ----------------------------------------------------------------------

// Kind は画像参照の表現形式です。
type Kind int

const (
	// KindOpaque は解決対象外の文字列です。値はそのまま渡されます。
	KindOpaque Kind = iota
	// KindRemoteURL は http:// または https:// で始まるURLです。
	KindRemoteURL
	// KindInlineData は data:<mime>;base64,<payload> 形式の埋め込みデータです。
	KindInlineData
)

func (k Kind) String() string {
	switch k {
	case KindRemoteURL:
		return "remote_url"
	case KindInlineData:
		return "inline_data"
	default:
		return "opaque"
	}
}

const dataScheme = "data:"

// Reference は分類済みの画像参照です。Classify でのみ生成します。
type Reference struct {
	Kind Kind
	Raw  string
}

// Classify は生の文字列を3種類の画像参照のいずれかに分類します。
func Classify(value string) Reference {
	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return Reference{Kind: KindRemoteURL, Raw: value}
	case strings.HasPrefix(lower, dataScheme):
		return Reference{Kind: KindInlineData, Raw: value}
	default:
		return Reference{Kind: KindOpaque, Raw: value}
	}
}

// ----------------------------------------------------------------------
// 埋め込みデータ (data URI) の解析
// ----------------------------------------------------------------------

// ErrMalformedInlineData は data URI の形式が不正であることを示します。
var ErrMalformedInlineData = errors.New("data URIの形式が不正です")

// InlineData は解析済みの data URI です。
type InlineData struct {
	MIMEType string
	Data     []byte
}

// Extension は MIME サブタイプから拡張子を導出します (例: image/svg+xml → svg)。
// サブタイプ内の "." は "_" に置き換えます (image/vnd.microsoft.icon → vnd_microsoft_icon)。
// MIMETypeForExt はこの変換の逆です。
func (d InlineData) Extension() string {
	_, sub, _ := strings.Cut(d.MIMEType, "/")
	sub, _, _ = strings.Cut(sub, "+")
	return strings.ReplaceAll(strings.ToLower(sub), ".", "_")
}

// ParseInlineData は data:<mime>;base64,<payload> 形式の文字列をデコードします。
func ParseInlineData(raw string) (InlineData, error) {
	if !strings.HasPrefix(strings.ToLower(raw), dataScheme) {
		return InlineData{}, fmt.Errorf("%w: data: で始まっていません", ErrMalformedInlineData)
	}

	header, payload, found := strings.Cut(raw[len(dataScheme):], ",")
	if !found {
		return InlineData{}, fmt.Errorf("%w: ペイロードの区切り (,) がありません", ErrMalformedInlineData)
	}

	params := strings.Split(header, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	if _, sub, ok := strings.Cut(mimeType, "/"); !ok || sub == "" || strings.ContainsAny(sub, "/\\") {
		return InlineData{}, fmt.Errorf("%w: MIMEタイプ(%q)が不正です", ErrMalformedInlineData, params[0])
	}

	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return InlineData{}, fmt.Errorf("%w: base64エンコードのみ対応しています", ErrMalformedInlineData)
	}

	data, err := decodeBase64(strings.TrimSpace(payload))
	if err != nil {
		return InlineData{}, fmt.Errorf("%w: base64のデコードに失敗しました: %v", ErrMalformedInlineData, err)
	}
	return InlineData{MIMEType: mimeType, Data: data}, nil
}

// decodeBase64 はパディングの有無どちらの base64 も受け付けます。
func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// EncodeInlineData は MIME タイプとバイト列から data URI を組み立てます。
func EncodeInlineData(mimeType string, data []byte) string {
	return dataScheme + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ----------------------------------------------------------------------
// ファイルからの埋め込み
// ----------------------------------------------------------------------

// MIMETypeForExt は拡張子 (先頭のドットは任意) から画像の MIME タイプを返します。
// InlineData.Extension の逆変換なので、data URI から保存したファイルは宣言どおりの MIME タイプに戻ります。
func MIMETypeForExt(ext string) string {
	switch ext = strings.ToLower(strings.TrimPrefix(ext, ".")); ext {
	case "":
		return "application/octet-stream"
	case "svg":
		return "image/svg+xml"
	default:
		return "image/" + strings.ReplaceAll(ext, "_", ".")
	}
}

// EmbedFile はローカルファイルを読み込み、拡張子から決めた MIME タイプの data URI を返します。
func EmbedFile(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("画像ファイル(%s)の読み込みに失敗しました: %w", filePath, err)
	}
	return EncodeInlineData(MIMETypeForExt(filepath.Ext(filePath)), data), nil
}

// remoteFilename はURLのパス部分 (クエリを除く) の末尾要素を返します。
// 末尾要素が得られない場合は空文字列です。
func remoteFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// パースできないURLは ? より前だけを見る
		before, _, _ := strings.Cut(rawURL, "?")
		return safeBase(before)
	}
	return safeBase(u.Path)
}

func safeBase(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	switch base {
	case ".", "/", "..", "":
		return ""
	}
	return base
}
