package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockFetcher は Fetcher インターフェースをモックします。
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	// レスポンスが存在する場合のみ型アサーションを行う
	if args.Get(0) != nil {
		return args.Get(0).([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestNew(t *testing.T) {
	t.Run("default timeout", func(t *testing.T) {
		c := New(0)
		assert.Equal(t, DefaultHTTPTimeout, c.Timeout())
		assert.NotNil(t, c.fetcher)
	})
	t.Run("custom timeout", func(t *testing.T) {
		c := New(3 * time.Second)
		assert.Equal(t, 3*time.Second, c.Timeout())
	})
	t.Run("nil fetcher option is ignored", func(t *testing.T) {
		c := New(time.Second, WithFetcher(nil))
		assert.NotNil(t, c.fetcher)
	})
}

func TestFetchBytes(t *testing.T) {
	t.Run("successful fetch", func(t *testing.T) {
		m := new(MockFetcher)
		m.On("FetchBytes", mock.Anything, "https://example.com").Return([]byte("<html></html>"), nil).Once()

		c := New(time.Second, WithFetcher(m))
		body, err := c.FetchBytes(context.Background(), "https://example.com")

		assert.NoError(t, err)
		assert.Equal(t, []byte("<html></html>"), body)
		m.AssertExpectations(t)
	})

	t.Run("deadline is applied", func(t *testing.T) {
		m := new(MockFetcher)
		m.On("FetchBytes", mock.MatchedBy(func(ctx context.Context) bool {
			deadline, ok := ctx.Deadline()
			return ok && time.Until(deadline) <= 2*time.Second
		}), "https://example.com").Return([]byte("ok"), nil).Once()

		c := New(2*time.Second, WithFetcher(m))
		_, err := c.FetchBytes(context.Background(), "https://example.com")

		assert.NoError(t, err)
		m.AssertExpectations(t)
	})

	t.Run("single attempt on error", func(t *testing.T) {
		m := new(MockFetcher)
		m.On("FetchBytes", mock.Anything, "https://example.com/404").Return(nil, errors.New("status 404")).Once()

		c := New(time.Second, WithFetcher(m))
		body, err := c.FetchBytes(context.Background(), "https://example.com/404")

		assert.Error(t, err)
		assert.Nil(t, body)
		assert.Contains(t, err.Error(), "https://example.com/404")
		m.AssertNumberOfCalls(t, "FetchBytes", 1)
	})
}
