package render

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRenderClient tracks session lifecycle for pool tests.
type fakeRenderClient struct {
	mu        sync.Mutex
	nextID    int
	created   []string
	closed    []string
	renderErr error
}

func (f *fakeRenderClient) CreateSession(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("sess-%d", f.nextID)
	f.created = append(f.created, id)
	return &Session{ID: id}, nil
}

func (f *fakeRenderClient) Render(ctx context.Context, sessionID, url string) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	return &Page{URL: url, HTML: "<html></html>", StatusCode: 200}, nil
}

func (f *fakeRenderClient) CloseSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
	return nil
}

func TestPoolReusesSession(t *testing.T) {
	t.Parallel()

	fake := &fakeRenderClient{}
	pool := NewSessionPool(fake, 10)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		page, err := pool.Render(ctx, "https://shop.test/products/a")
		require.NoError(t, err)
		assert.Equal(t, 200, page.StatusCode)
	}

	assert.Len(t, fake.created, 1)
	assert.Empty(t, fake.closed)
}

func TestPoolRecyclesAfterMaxUses(t *testing.T) {
	t.Parallel()

	fake := &fakeRenderClient{}
	pool := NewSessionPool(fake, 3)

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := pool.Render(ctx, "https://shop.test/products/a")
		require.NoError(t, err)
	}

	// Uses 1-3 on sess-1 (closed), 4-6 on sess-2 (closed), 7 on sess-3.
	assert.Len(t, fake.created, 3)
	assert.Equal(t, []string{"sess-1", "sess-2"}, fake.closed)
}

func TestPoolDiscardsFailedSession(t *testing.T) {
	t.Parallel()

	fake := &fakeRenderClient{renderErr: eris.New("browser crashed")}
	pool := NewSessionPool(fake, 10)

	_, err := pool.Render(context.Background(), "https://shop.test/products/a")
	require.Error(t, err)
	assert.Equal(t, []string{"sess-1"}, fake.closed)

	// Recovery: next render opens a fresh session.
	fake.renderErr = nil
	_, err = pool.Render(context.Background(), "https://shop.test/products/a")
	require.NoError(t, err)
	assert.Len(t, fake.created, 2)
}

func TestPoolClose(t *testing.T) {
	t.Parallel()

	fake := &fakeRenderClient{}
	pool := NewSessionPool(fake, 10)

	ctx := context.Background()
	_, err := pool.Render(ctx, "https://shop.test/products/a")
	require.NoError(t, err)

	pool.Close(ctx)
	assert.Equal(t, []string{"sess-1"}, fake.closed)
}

func TestPoolConcurrentRender(t *testing.T) {
	t.Parallel()

	fake := &fakeRenderClient{}
	pool := NewSessionPool(fake, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Render(context.Background(), "https://shop.test/products/a")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Concurrency may open several sessions but never more than workers.
	assert.LessOrEqual(t, len(fake.created), 10)
}
