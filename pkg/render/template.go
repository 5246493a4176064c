package render

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/shouni/go-mail-packager/pkg/archive"
)

// EntryFile はテンプレートおよびパッケージの入口となるファイル名です。
const EntryFile = "index.html"

// ErrMissingEntry はテンプレートのルートに index.html が無いことを示します。
var ErrMissingEntry = errors.New("テンプレートのルートに " + EntryFile + " が見つかりません")

// Template はテンプレート本文と、本文から相対パスで参照されるアセットのディレクトリです。
// 読み込み後は変更されない値として、レンダラーに明示的に渡されます。
type Template struct {
	Body string
	// Dir はアセットを含む展開済みディレクトリです。空の場合、アセットはありません。
	Dir string
}

// LoadTemplateArchive は zip のバイト列を workDir に展開し、ルートの index.html を読み込みます。
func LoadTemplateArchive(data []byte, workDir string) (*Template, error) {
	if err := archive.Extract(data, workDir); err != nil {
		return nil, fmt.Errorf("テンプレートアーカイブの展開に失敗しました: %w", err)
	}
	return LoadTemplateDir(workDir)
}

// LoadTemplateFile は zip ファイルを workDir に展開してテンプレートを読み込みます。
func LoadTemplateFile(zipPath, workDir string) (*Template, error) {
	if err := archive.ExtractFile(zipPath, workDir); err != nil {
		return nil, fmt.Errorf("テンプレートアーカイブの展開に失敗しました: %w", err)
	}
	return LoadTemplateDir(workDir)
}

// LoadTemplateDir は展開済みディレクトリからテンプレートを読み込みます。
func LoadTemplateDir(dir string) (*Template, error) {
	entry := filepath.Join(dir, EntryFile)
	info, err := os.Stat(entry)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return nil, ErrMissingEntry
	}
	if err != nil {
		return nil, fmt.Errorf("%s の確認に失敗しました: %w", entry, err)
	}

	body, err := os.ReadFile(entry)
	if err != nil {
		return nil, fmt.Errorf("テンプレート(%s)の読み込みに失敗しました: %w", entry, err)
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("テンプレート(%s)がUTF-8ではありません", entry)
	}
	return &Template{Body: string(body), Dir: dir}, nil
}

// Assets はアセットファイルの Dir からの相対パスを返します。ルートの index.html は含みません。
func (t *Template) Assets() ([]string, error) {
	if t == nil || t.Dir == "" {
		return nil, nil
	}

	var assets []string
	err := filepath.WalkDir(t.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(t.Dir, path)
		if err != nil {
			return err
		}
		if rel == EntryFile {
			return nil
		}
		assets = append(assets, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("テンプレートアセットの列挙に失敗しました: %w", err)
	}
	return assets, nil
}

// CopyAssets はすべてのアセットを dst に同じ相対パスでコピーします。既存ファイルは上書きします。
func (t *Template) CopyAssets(dst string) error {
	assets, err := t.Assets()
	if err != nil {
		return err
	}
	for _, rel := range assets {
		if err := copyFile(filepath.Join(t.Dir, rel), filepath.Join(dst, rel)); err != nil {
			return fmt.Errorf("アセット(%s)のコピーに失敗しました: %w", rel, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
