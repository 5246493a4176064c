package render

import (
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// Engine はテンプレート本文を1行分の変数でレンダリングします。
type Engine interface {
	Render(body string, data map[string]any) (string, error)
}

// PongoEngine は {{ var }} 構文を pongo2 で評価する Engine です。
// 出力は自動エスケープしません。列の値はそのままHTMLに埋め込まれます。
type PongoEngine struct{}

func init() {
	if !pongo2.FilterExists("required") {
		_ = pongo2.RegisterFilter("required", filterRequired)
	}
}

// filterRequired は値が空の場合にレンダリングエラーにします。
//
//	{{ title1|required }}
func filterRequired(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if strings.TrimSpace(in.String()) == "" {
		return nil, &pongo2.Error{
			Sender:    "filter:required",
			OrigError: fmt.Errorf("必須の値が空です"),
		}
	}
	return in, nil
}

func (PongoEngine) Render(body string, data map[string]any) (string, error) {
	tpl, err := pongo2.FromString("{% autoescape off %}" + body + "{% endautoescape %}")
	if err != nil {
		return "", fmt.Errorf("テンプレートの解析に失敗しました: %w", err)
	}

	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", fmt.Errorf("テンプレートのレンダリングに失敗しました: %w", err)
	}
	return out, nil
}
