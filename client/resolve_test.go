package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sqlbridge/sqlbridge/compile"
	"github.com/sqlbridge/sqlbridge/sqlq"
)

// stubClient is a do-nothing backend for resolver tests.
type stubClient struct {
	queries atomic.Int64
}

func (s *stubClient) Dialect() compile.Dialect { return compile.SQLite }

func (s *stubClient) Query(ctx context.Context, q sqlq.Query) (sqlq.Result, error) {
	s.queries.Add(1)
	return sqlq.Result{}, nil
}

func (s *stubClient) Execute(ctx context.Context, q sqlq.Query) (sqlq.ExecInfo, error) {
	return sqlq.ExecInfo{}, nil
}

func TestResolverMemoizes(t *testing.T) {
	var constructed atomic.Int64
	r := NewResolver(func() Client {
		constructed.Add(1)
		return &stubClient{}
	})
	t.Cleanup(func() { r.Close() })
	ctx := context.Background()

	first, err := r.Client(ctx)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := r.Client(ctx)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if first != second {
		t.Error("resolver returned different instances")
	}
	if n := constructed.Load(); n != 1 {
		t.Errorf("factory ran %d times, want 1", n)
	}
}

func TestResolverConcurrentFirstUse(t *testing.T) {
	var constructed atomic.Int64
	r := NewResolver(func() Client {
		constructed.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &stubClient{}
	})
	t.Cleanup(func() { r.Close() })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Client(context.Background()); err != nil {
				t.Errorf("resolve failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := constructed.Load(); n != 1 {
		t.Errorf("factory ran %d times under concurrency, want 1", n)
	}
}

func TestResolverDirectClient(t *testing.T) {
	stub := &stubClient{}
	r := NewResolver(stub)
	t.Cleanup(func() { r.Close() })

	c, err := r.Client(context.Background())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if c != Client(stub) {
		t.Error("direct client descriptor was not used as-is")
	}
}

func TestResolverRemoteBinding(t *testing.T) {
	r := NewResolver(&Binding{Endpoint: "https://db.example.com"})
	t.Cleanup(func() { r.Close() })

	c, err := r.Client(context.Background())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if _, ok := c.(*RemoteClient); !ok {
		t.Errorf("resolved %T, want *RemoteClient", c)
	}
}

func TestResolverStringDescriptors(t *testing.T) {
	t.Run("memory sqlite", func(t *testing.T) {
		r := NewResolver(":memory:")
		t.Cleanup(func() { r.Close() })

		c, err := r.Client(context.Background())
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if _, ok := c.(*SQLiteClient); !ok {
			t.Errorf("resolved %T, want *SQLiteClient", c)
		}
	})

	t.Run("https remote", func(t *testing.T) {
		r := NewResolver("https://db.example.com")
		t.Cleanup(func() { r.Close() })

		c, err := r.Client(context.Background())
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if _, ok := c.(*RemoteClient); !ok {
			t.Errorf("resolved %T, want *RemoteClient", c)
		}
	})

	t.Run("unknown scheme", func(t *testing.T) {
		r := NewResolver("mongodb://nope")
		t.Cleanup(func() { r.Close() })

		_, err := r.Client(context.Background())
		var unsupported *UnsupportedRuntimeError
		if !errors.As(err, &unsupported) {
			t.Fatalf("expected UnsupportedRuntimeError, got %v", err)
		}
		if !strings.Contains(err.Error(), "sqlite") {
			t.Errorf("error does not name supported backends: %v", err)
		}
	})
}

func TestResolverInvalidDescriptor(t *testing.T) {
	for _, descriptor := range []any{42, struct{}{}, func() Client { return nil }} {
		r := NewResolver(descriptor)
		_, err := r.Client(context.Background())
		var invalid *InvalidClientError
		if !errors.As(err, &invalid) {
			t.Errorf("descriptor %T: expected InvalidClientError, got %v", descriptor, err)
		}
		r.Close()
	}
}

func TestFileWatchReplacementClosesOldWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.db")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write db file: %v", err)
	}

	r := NewResolver(path, WithFileWatch())
	t.Cleanup(func() { r.Close() })

	r.watchSQLiteFile(path)
	r.mu.Lock()
	first := r.watcher
	r.mu.Unlock()
	if first == nil {
		t.Fatal("no watcher installed")
	}

	// A second watch (as after invalidation and reconstruction) replaces
	// the watcher; the first one must be closed, not leaked.
	r.watchSQLiteFile(path)
	r.mu.Lock()
	second := r.watcher
	r.mu.Unlock()
	if second == first {
		t.Fatal("watcher was not replaced")
	}
	if err := first.Add(path); err == nil {
		t.Error("previous watcher still accepts paths; it was never closed")
	}
}

func TestResolverRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int64
	r := NewResolver(func() Client {
		if calls.Add(1) == 1 {
			return nil // first construction fails
		}
		return &stubClient{}
	})
	t.Cleanup(func() { r.Close() })
	ctx := context.Background()

	if _, err := r.Client(ctx); err == nil {
		t.Fatal("expected first resolve to fail")
	}
	if _, err := r.Client(ctx); err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("factory ran %d times, want 2", n)
	}
}
