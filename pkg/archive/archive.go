package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"
)

// defaultUmask は展開したファイルのパーミッションに適用するマスクです。
const defaultUmask os.FileMode = 0o022

// ----------------------------------------------------------------------
// 展開
// ----------------------------------------------------------------------

// ExtractFile は zipPath の zip アーカイブを destDir に展開します。
// パストラバーサルを含むエントリはエラーになります。
func ExtractFile(zipPath, destDir string) error {
	d := &getter.ZipDecompressor{}
	if err := d.Decompress(destDir, zipPath, true, defaultUmask); err != nil {
		return fmt.Errorf("アーカイブ(%s)の展開に失敗しました: %w", zipPath, err)
	}
	return nil
}

// Extract は zip のバイト列を destDir に展開します。
func Extract(data []byte, destDir string) error {
	tmp, err := os.CreateTemp("", "mailpack-*.zip")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("一時ファイルへの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}
	return ExtractFile(tmp.Name(), destDir)
}

// ----------------------------------------------------------------------
// 作成
// ----------------------------------------------------------------------

// Create は srcDir 配下のファイルを、srcDir からの相対パスで destZip にまとめます。
// destZip 自身が srcDir 配下にあっても、アーカイブには含めません。
func Create(srcDir, destZip string) error {
	return create(srcDir, destZip, nil)
}

// CreateSelected は srcDir 直下の entries (ファイルまたはディレクトリ) だけを destZip にまとめます。
// entries に存在しない名前が含まれていてもエラーにはしません。
func CreateSelected(srcDir, destZip string, entries []string) error {
	keep := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keep[e] = struct{}{}
	}
	return create(srcDir, destZip, keep)
}

// create は keep が nil でなければ、先頭のパス要素が keep に含まれるものだけをまとめます。
func create(srcDir, destZip string, keep map[string]struct{}) (err error) {
	if err := os.MkdirAll(filepath.Dir(destZip), 0o755); err != nil {
		return fmt.Errorf("出力先ディレクトリの作成に失敗しました: %w", err)
	}

	out, err := os.Create(destZip)
	if err != nil {
		return fmt.Errorf("アーカイブ(%s)の作成に失敗しました: %w", destZip, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("アーカイブ(%s)のクローズに失敗しました: %w", destZip, cerr)
		}
		if err != nil {
			os.Remove(destZip)
		}
	}()

	absDest, _ := filepath.Abs(destZip)
	zw := zip.NewWriter(out)

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absDest {
			return nil
		}
		if keep != nil {
			top, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
			if _, ok := keep[top]; !ok {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		name := filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return addFile(zw, path, name)
	})
	if walkErr != nil {
		zw.Close()
		return fmt.Errorf("ディレクトリ(%s)のアーカイブ化に失敗しました: %w", srcDir, walkErr)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("アーカイブ(%s)の書き込みに失敗しました: %w", destZip, err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}
