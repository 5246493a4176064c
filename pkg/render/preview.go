package render

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shouni/go-mail-packager/pkg/imageref"
	"github.com/shouni/go-mail-packager/pkg/notify"
	"github.com/shouni/go-mail-packager/pkg/types"
)

// ErrNoRows はプレビュー対象の行が無いことを示します。
var ErrNoRows = errors.New("プレビューする行がありません")

// PreviewRenderer は最初の1行だけを、外部ファイルに依存しない単一のHTMLとしてレンダリングします。
type PreviewRenderer struct {
	resolver ImageResolver
	workDir  string
	opts     options
}

// NewPreviewRenderer は新しい PreviewRenderer を生成します。workDir はダウンロードした画像と
// テンプレートアセットの一時的な置き場所です。
func NewPreviewRenderer(resolver ImageResolver, workDir string, opts ...Option) (*PreviewRenderer, error) {
	if resolver == nil {
		return nil, fmt.Errorf("render.NewPreviewRenderer: ImageResolver cannot be nil")
	}
	if workDir == "" {
		return nil, fmt.Errorf("render.NewPreviewRenderer: workDir cannot be empty")
	}
	return &PreviewRenderer{
		resolver: resolver,
		workDir:  workDir,
		opts:     newOptions(opts),
	}, nil
}

// RenderPreview は rows の最初の行からプレビューHTMLを作ります。
// 元の行は変更しません。レンダリングに失敗した場合は空文字列とエラーを返します。
func (p *PreviewRenderer) RenderPreview(ctx context.Context, rows []*types.Row, tpl *Template, imageColumns []string) (string, error) {
	if len(rows) == 0 {
		return "", ErrNoRows
	}
	if tpl == nil {
		return "", fmt.Errorf("テンプレートが読み込まれていません")
	}
	row := rows[0].Clone()

	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return "", fmt.Errorf("プレビュー用ディレクトリの作成に失敗しました: %w", err)
	}
	if err := tpl.CopyAssets(p.workDir); err != nil {
		// アセットが無くてもプレビュー自体は作れる
		p.opts.notifier.Warn(ctx, notify.Warning{Row: 1, Stage: notify.StagePreview, Err: err})
	}

	for _, col := range imageColumns {
		value := row.Get(col)
		if imageref.Classify(value).Kind != imageref.KindRemoteURL {
			continue
		}
		embedded, err := p.resolver.ResolveToEmbedded(ctx, value, p.workDir, col)
		if err != nil {
			p.opts.notifier.Warn(ctx, notify.Warning{Row: 1, Stage: notify.StageImage, Err: err})
			continue
		}
		row.Set(col, embedded)
	}

	rendered, err := p.opts.engine.Render(tpl.Body, row.Map())
	if err != nil {
		return "", fmt.Errorf("プレビューのレンダリングに失敗しました: %w", err)
	}

	return imageref.InlineLocalReferences(rendered, p.workDir), nil
}
