package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shouni/go-mail-packager/pkg/archive"
	"github.com/shouni/go-mail-packager/pkg/notify"
	"github.com/shouni/go-mail-packager/pkg/types"
)

const (
	// PackagesDir は出力ディレクトリ内で、パッケージディレクトリをまとめる場所です。
	PackagesDir = "packages"
	// AggregateArchive はすべてのパッケージをまとめたアーカイブのファイル名です。
	// 個々のパッケージのアーカイブとは衝突しないよう、同名の識別子は使いません。
	AggregateArchive = "all_packages.zip"
)

// ImageResolver は画像参照をパッケージ内のファイル、または data URI に正規化します。
// *imageref.Resolver はこのインターフェースを満たします。
type ImageResolver interface {
	Resolve(ctx context.Context, value, destDir, fallbackName string) (finalValue, localPath string, err error)
	ResolveToEmbedded(ctx context.Context, value, workDir, fallbackName string) (string, error)
}

// ----------------------------------------------------------------------
// 設定とコンストラクタ
// ----------------------------------------------------------------------

// Option は PackageRenderer と PreviewRenderer の設定を行うための関数型です。
type Option func(*options)

type options struct {
	engine    Engine
	notifier  notify.Notifier
	textPart  bool
	onPackage func(id, archivePath string)
}

func newOptions(opts []Option) options {
	o := options{
		engine:   PongoEngine{},
		notifier: notify.Discard,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithEngine はテンプレートエンジンを差し替えます。
func WithEngine(e Engine) Option {
	return func(o *options) {
		if e != nil {
			o.engine = e
		}
	}
}

// WithNotifier は回復可能な失敗の通知先を設定します。
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithTextPart が true の場合、各パッケージに index.md を同梱します。
func WithTextPart(enabled bool) Option {
	return func(o *options) {
		o.textPart = enabled
	}
}

// WithPackageObserver はパッケージのアーカイブ完了ごとに呼ばれる関数を設定します。
func WithPackageObserver(f func(id, archivePath string)) Option {
	return func(o *options) {
		o.onPackage = f
	}
}

// PackageRenderer は1行につき1つの自己完結したパッケージを作成します。
type PackageRenderer struct {
	resolver  ImageResolver
	outputDir string
	opts      options

	// この実行で作成済みのパッケージ識別子
	produced map[string]struct{}
}

// NewPackageRenderer は新しい PackageRenderer を生成します。
// パッケージは outputDir/packages/<id>/ に、アーカイブは outputDir/<id>.zip に作成されます。
func NewPackageRenderer(resolver ImageResolver, outputDir string, opts ...Option) (*PackageRenderer, error) {
	if resolver == nil {
		return nil, fmt.Errorf("render.NewPackageRenderer: ImageResolver cannot be nil")
	}
	if outputDir == "" {
		return nil, fmt.Errorf("render.NewPackageRenderer: outputDir cannot be empty")
	}
	return &PackageRenderer{
		resolver:  resolver,
		outputDir: outputDir,
		opts:      newOptions(opts),
		produced:  make(map[string]struct{}),
	}, nil
}

// PackagesRoot はパッケージディレクトリの親ディレクトリを返します。
func (p *PackageRenderer) PackagesRoot() string {
	return filepath.Join(p.outputDir, PackagesDir)
}

// Produced はこの実行で作成できたパッケージの識別子を、名前順で返します。
func (p *PackageRenderer) Produced() []string {
	ids := make([]string, 0, len(p.produced))
	for id := range p.produced {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ----------------------------------------------------------------------
// パッケージ識別子
// ----------------------------------------------------------------------

// PackageIdentifier は行のパッケージ識別子を決めます。
// namingColumn の値が空でなければその値を、そうでなければ1始まりの行番号を使います。
// パス区切り文字は "_" に置き換え、パッケージディレクトリの外に出ないようにします。
// 全体アーカイブと同じ名前になる値には "_<行番号>" を付けます。
func PackageIdentifier(row *types.Row, namingColumn string, position int) string {
	if namingColumn != "" {
		if v := row.Get(namingColumn); v != "" {
			id := strings.NewReplacer("/", "_", "\\", "_").Replace(v)
			if strings.EqualFold(id+".zip", AggregateArchive) {
				return id + "_" + strconv.Itoa(position)
			}
			if id != "." && id != ".." {
				return id
			}
		}
	}
	return strconv.Itoa(position)
}

// ----------------------------------------------------------------------
// レンダリング
// ----------------------------------------------------------------------

// RenderAll は rows を順に処理し、作成できたアーカイブのパスを行順で返します。
// 失敗した行は通知したうえで結果から除外し、残りの行の処理を続けます。
func (p *PackageRenderer) RenderAll(ctx context.Context, rows []*types.Row, tpl *Template, namingColumn string, imageColumns []string) []string {
	archives := make([]string, 0, len(rows))
	for i, row := range rows {
		path, err := p.RenderPackage(ctx, i+1, row, tpl, namingColumn, imageColumns)
		if err != nil {
			var w notify.Warning
			if !errors.As(err, &w) {
				w = notify.Warning{Row: i + 1, Stage: notify.StageRender, Err: err}
			}
			p.opts.notifier.Warn(ctx, w)
			continue
		}
		archives = append(archives, path)
	}
	return archives
}

// RenderPackage は position 番目 (1始まり) の行から1つのパッケージを作成し、アーカイブのパスを返します。
// 画像列は解決できたものだけがファイル名に書き換えられ、失敗は通知のみです。
// それ以外の段階の失敗は notify.Warning としてエラーで返します。
func (p *PackageRenderer) RenderPackage(ctx context.Context, position int, row *types.Row, tpl *Template, namingColumn string, imageColumns []string) (string, error) {
	id := PackageIdentifier(row, namingColumn, position)
	pkgDir := filepath.Join(p.PackagesRoot(), id)
	_, reused := p.produced[id]

	fail := func(stage notify.Stage, err error) (string, error) {
		// 不完全なパッケージは残さない (同じ実行で作成済みのものは除く)
		if !reused {
			os.RemoveAll(pkgDir)
		}
		return "", notify.Warning{Row: position, Package: id, Stage: stage, Err: err}
	}

	if tpl == nil {
		return "", notify.Warning{Row: position, Package: id, Stage: notify.StageRender, Err: fmt.Errorf("テンプレートが読み込まれていません")}
	}

	// 以前の実行で残ったディレクトリは作り直す
	if !reused {
		if err := os.RemoveAll(pkgDir); err != nil {
			return fail(notify.StageWrite, fmt.Errorf("既存のパッケージディレクトリの削除に失敗しました: %w", err))
		}
	}
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return fail(notify.StageWrite, fmt.Errorf("パッケージディレクトリの作成に失敗しました: %w", err))
	}

	// 1. 画像列の解決
	for _, col := range imageColumns {
		value := row.Get(col)
		if value == "" {
			continue
		}
		final, _, err := p.resolver.Resolve(ctx, value, pkgDir, col)
		if err != nil {
			p.opts.notifier.Warn(ctx, notify.Warning{Row: position, Package: id, Stage: notify.StageImage, Err: err})
			continue
		}
		row.Set(col, final)
	}

	// 2. レンダリング
	rendered, err := p.opts.engine.Render(tpl.Body, row.Map())
	if err != nil {
		return fail(notify.StageRender, err)
	}

	// 3. テンプレートアセットのコピー
	if err := tpl.CopyAssets(pkgDir); err != nil {
		return fail(notify.StageCopy, err)
	}

	// 4. 入口ファイルの書き込み
	if err := os.WriteFile(filepath.Join(pkgDir, EntryFile), []byte(rendered), 0o644); err != nil {
		return fail(notify.StageWrite, fmt.Errorf("%s の書き込みに失敗しました: %w", EntryFile, err))
	}
	if p.opts.textPart {
		p.writeTextPart(ctx, position, id, pkgDir, rendered)
	}

	// 5. アーカイブ化
	archivePath := filepath.Join(p.outputDir, id+".zip")
	if err := archive.Create(pkgDir, archivePath); err != nil {
		return fail(notify.StageArchive, err)
	}

	p.produced[id] = struct{}{}
	if p.opts.onPackage != nil {
		p.opts.onPackage(id, archivePath)
	}
	return archivePath, nil
}

// writeTextPart はテキスト版を書き込みます。失敗してもパッケージの作成は続けます。
func (p *PackageRenderer) writeTextPart(ctx context.Context, position int, id, pkgDir, rendered string) {
	text, err := ToText(rendered)
	if err == nil {
		err = os.WriteFile(filepath.Join(pkgDir, TextFile), []byte(text), 0o644)
	}
	if err != nil {
		p.opts.notifier.Warn(ctx, notify.Warning{Row: position, Package: id, Stage: notify.StageWrite, Err: err})
	}
}
