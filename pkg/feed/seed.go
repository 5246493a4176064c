package feed

import (
	"strconv"

	"github.com/shouni/go-mail-packager/pkg/types"
)

// IDColumn は生成する入力テーブルの識別子列です。
const IDColumn = "ID"

// SeedHeader は ID と urlColumns からなるヘッダーを返します。
func SeedHeader(urlColumns []string) []string {
	header := make([]string, 0, len(urlColumns)+1)
	header = append(header, IDColumn)
	return append(header, urlColumns...)
}

// SeedRows は links を len(urlColumns) 件ずつ1行にまとめ、入力テーブルの行を作ります。
// ID は1始まりの連番です。最後の行で余った列は空文字列になります。
func SeedRows(links []string, urlColumns []string) []*types.Row {
	perRow := len(urlColumns)
	if perRow == 0 || len(links) == 0 {
		return nil
	}

	header := SeedHeader(urlColumns)
	rows := make([]*types.Row, 0, (len(links)+perRow-1)/perRow)
	for start := 0; start < len(links); start += perRow {
		end := min(start+perRow, len(links))

		record := make([]string, 0, perRow+1)
		record = append(record, strconv.Itoa(len(rows)+1))
		record = append(record, links[start:end]...)
		rows = append(rows, types.NewRow(header, record))
	}
	return rows
}

// URLColumns は url1 … urlN の列名を返します。
func URLColumns(n int) []string {
	cols := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		cols = append(cols, "url"+strconv.Itoa(i))
	}
	return cols
}
