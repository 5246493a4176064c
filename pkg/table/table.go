package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shouni/go-mail-packager/pkg/types"
)

// Delimiter は入力・出力テーブルの区切り文字です。
const Delimiter = ';'

var (
	// ErrMissingHeader はヘッダー行が存在しないことを示します。
	ErrMissingHeader = errors.New("テーブルにヘッダー行がありません")
	// ErrEmptyTable はヘッダー以外のデータ行が存在しないことを示します。
	ErrEmptyTable = errors.New("テーブルにデータ行がありません")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table はヘッダーと、そのヘッダーから作られた行の集合です。
type Table struct {
	Header []string
	Rows   []*types.Row
}

// Read はセミコロン区切りのUTF-8テーブルを読み込みます。
// 先頭のBOMは除去され、列数が足りない行は空文字列で補完されます。
func Read(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("ヘッダー行の読み込みに失敗しました: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Header: header}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%d行目の読み込みに失敗しました: %w", len(t.Rows)+2, err)
		}
		t.Rows = append(t.Rows, types.NewRow(header, record))
	}

	if len(t.Rows) == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

// Columns は行集合に現れる列名を、最初に現れた順で返します。
func Columns(rows []*types.Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range rows {
		for _, k := range row.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	return cols
}

// Write は行集合をセミコロン区切りで書き出します。ヘッダーは Columns の順です。
func Write(w io.Writer, rows []*types.Row) error {
	cols := Columns(rows)

	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("ヘッダー行の書き込みに失敗しました: %w", err)
	}
	record := make([]string, len(cols))
	for i, row := range rows {
		for j, c := range cols {
			record[j] = row.Get(c)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("%d行目の書き込みに失敗しました: %w", i+1, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("テーブルの書き込みに失敗しました: %w", err)
	}
	return nil
}
