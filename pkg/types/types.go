package types

// ScrapedFields は、1つのURLから抽出された結果を保持します。
// 抽出に失敗した項目は空文字列になります。
type ScrapedFields struct {
	Title    string // 最初の h1 のテキスト
	ImageRef string // 画像コンテナ直下の img の src
	Lead     string // リード文 (最大 MaxLeadLength 文字)
}

// MaxLeadLength は、リード文として保持する最大文字数 (rune 数) です。
const MaxLeadLength = 150

// Row は、入力テーブルの1行を表す順序付きの「列名 → 値」マッピングです。
// キーの挿入順を保持するため、CSV への書き戻しやテンプレート変数の列挙で順序が安定します。
type Row struct {
	keys   []string
	values map[string]string
}

// NewRow は、ヘッダーと値のスライスから Row を生成します。
// 値が足りない列は空文字列で補完されます。
func NewRow(header []string, record []string) *Row {
	r := &Row{values: make(map[string]string, len(header))}
	for i, key := range header {
		value := ""
		if i < len(record) {
			value = record[i]
		}
		r.Set(key, value)
	}
	return r
}

// Get は列の値を返します。列が存在しない場合は空文字列です。
func (r *Row) Get(key string) string {
	if r == nil || r.values == nil {
		return ""
	}
	return r.values[key]
}

// Lookup は列の値と、その列が存在するかどうかを返します。
func (r *Row) Lookup(key string) (string, bool) {
	if r == nil || r.values == nil {
		return "", false
	}
	v, ok := r.values[key]
	return v, ok
}

// Has は列が存在するかどうかを返します。
func (r *Row) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Set は列の値を設定します。新しい列は末尾に追加され、既存の列は位置を保ったまま上書きされます。
func (r *Row) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Keys は列名を挿入順で返します。
func (r *Row) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len は列数を返します。
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Map は、テンプレートのコンテキストとして使うためのコピーを返します。
func (r *Row) Map() map[string]any {
	out := make(map[string]any, r.Len())
	if r == nil {
		return out
	}
	for _, k := range r.keys {
		out[k] = r.values[k]
	}
	return out
}

// Clone は Row のディープコピーを返します。
func (r *Row) Clone() *Row {
	c := &Row{values: make(map[string]string, r.Len())}
	if r == nil {
		return c
	}
	for _, k := range r.keys {
		c.Set(k, r.values[k])
	}
	return c
}
