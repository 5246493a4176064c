package enrich

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-mail-packager/pkg/extract"
	"github.com/shouni/go-mail-packager/pkg/notify"
	"github.com/shouni/go-mail-packager/pkg/types"
)

// MockExtractor は Extractor インターフェースをモックします。
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, url string) (types.ScrapedFields, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(types.ScrapedFields), args.Error(1)
}

func newRows(header []string, records ...[]string) []*types.Row {
	rows := make([]*types.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, types.NewRow(header, r))
	}
	return rows
}

func TestNew_NilExtractor(t *testing.T) {
	e, err := New(nil)
	assert.Error(t, err)
	assert.Nil(t, e)
}

func TestDerivedColumns(t *testing.T) {
	title, img, lead := DerivedColumns(2)
	assert.Equal(t, "title2", title)
	assert.Equal(t, "img2", img)
	assert.Equal(t, "lead2", lead)
}

func TestEnrich(t *testing.T) {
	ctx := context.Background()
	m := new(MockExtractor)
	m.On("Extract", mock.Anything, "https://example.com/a").
		Return(types.ScrapedFields{Title: "A", ImageRef: "https://cdn.example.com/a.jpg", Lead: "lead a"}, nil)
	m.On("Extract", mock.Anything, "https://example.com/b").
		Return(types.ScrapedFields{Title: "B"}, nil)

	var collector notify.Collector
	e, err := New(m, WithNotifier(&collector))
	require.NoError(t, err)

	rows := newRows([]string{"ID", "url1", "url2", "segment"},
		[]string{"1", "https://example.com/a", "https://example.com/b", "vip"},
		[]string{"2", "", "", ""},
	)

	got := e.Enrich(ctx, rows, DefaultURLColumns)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "A", first.Get("title1"))
	assert.Equal(t, "https://cdn.example.com/a.jpg", first.Get("img1"))
	assert.Equal(t, "lead a", first.Get("lead1"))
	assert.Equal(t, "B", first.Get("title2"))
	assert.Equal(t, "vip", first.Get("segment"), "既存の列はそのまま残るべきです")
	assert.Equal(t,
		[]string{"ID", "url1", "url2", "segment", "title1", "img1", "lead1", "title2", "img2", "lead2"},
		first.Keys())

	// 空のURLでは抽出を呼ばず、派生列を空で設定する
	second := got[1]
	for _, key := range []string{"title1", "img1", "lead1", "title2", "img2", "lead2"} {
		v, ok := second.Lookup(key)
		assert.True(t, ok, "%s が設定されるべきです", key)
		assert.Empty(t, v)
	}

	m.AssertNumberOfCalls(t, "Extract", 2)
	assert.Zero(t, collector.Len())
}

func TestEnrich_KeySetIsTotalSuperset(t *testing.T) {
	m := new(MockExtractor)
	m.On("Extract", mock.Anything, mock.Anything).Return(types.ScrapedFields{}, errors.New("timeout"))

	e, err := New(m)
	require.NoError(t, err)

	// url2 列そのものが存在しない
	rows := newRows([]string{"ID", "url1"}, []string{"1", "https://example.com/x"})
	before := rows[0].Keys()

	e.Enrich(context.Background(), rows, []string{"url1", "url2", "url3"})

	after := rows[0].Keys()
	assert.Subset(t, after, before)
	for n := 1; n <= 3; n++ {
		title, img, lead := DerivedColumns(n)
		assert.Contains(t, after, title)
		assert.Contains(t, after, img)
		assert.Contains(t, after, lead)
	}
}

func TestEnrich_PageWithoutMatchesYieldsEmptyFields(t *testing.T) {
	m := new(MockExtractor)
	m.On("Extract", mock.Anything, "https://example.com/a").
		Return(types.ScrapedFields{}, fmt.Errorf("%w (URL: https://example.com/a)", extract.ErrNothingExtracted))

	var collector notify.Collector
	e, err := New(m, WithNotifier(&collector))
	require.NoError(t, err)

	rows := newRows([]string{"ID", "url1"}, []string{"42", "https://example.com/a"})
	e.Enrich(context.Background(), rows, []string{"url1"})

	assert.Equal(t, "", rows[0].Get("title1"))
	assert.Equal(t, "", rows[0].Get("img1"))
	assert.Equal(t, "", rows[0].Get("lead1"))
	assert.True(t, rows[0].Has("title1"))

	warnings := collector.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, notify.StageScrape, warnings[0].Stage)
	assert.Equal(t, 1, warnings[0].Row)
	assert.ErrorIs(t, warnings[0], extract.ErrNothingExtracted)
}

func TestEnrich_FailureOnOneRowDoesNotStopOthers(t *testing.T) {
	m := new(MockExtractor)
	m.On("Extract", mock.Anything, "https://bad.example.com").Return(types.ScrapedFields{}, errors.New("status 500"))
	m.On("Extract", mock.Anything, "https://good.example.com").Return(types.ScrapedFields{Title: "ok"}, nil)

	var collector notify.Collector
	var observed int
	e, err := New(m, WithNotifier(&collector), WithScrapeObserver(func(time.Duration) { observed++ }))
	require.NoError(t, err)

	rows := newRows([]string{"url1"}, []string{"https://bad.example.com"}, []string{"https://good.example.com"})
	e.Enrich(context.Background(), rows, []string{"url1"})

	assert.Equal(t, "", rows[0].Get("title1"))
	assert.Equal(t, "ok", rows[1].Get("title1"))
	assert.Equal(t, 1, collector.Count(notify.StageScrape))
	assert.Equal(t, 2, observed)
}

func TestEnrich_OverwritesCollidingColumn(t *testing.T) {
	m := new(MockExtractor)
	m.On("Extract", mock.Anything, mock.Anything).Return(types.ScrapedFields{Title: "scraped"}, nil)

	e, err := New(m)
	require.NoError(t, err)

	rows := newRows([]string{"title1", "url1"}, []string{"original", "https://example.com"})
	e.Enrich(context.Background(), rows, []string{"url1"})

	assert.Equal(t, "scraped", rows[0].Get("title1"))
	assert.Equal(t, "title1", rows[0].Keys()[0], "上書きされた列は元の位置を保つべきです")
}
