package client

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/sqlbridge/sqlbridge/dburl"
)

// supportedBackends names the alternatives reported when resolution fails.
var supportedBackends = []string{
	dburl.BackendSQLite,
	dburl.BackendMySQL,
	dburl.BackendPostgres,
	dburl.BackendRemote,
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithFileWatch drops the memoized connection when the underlying SQLite
// file is replaced by an external process (backups, restores operate on
// the same path through separate code paths). The next call reopens the
// new file. Only meaningful for file-backed SQLite descriptors.
func WithFileWatch() Option {
	return func(r *Resolver) { r.watchFile = true }
}

// Resolver picks exactly one backend driver for a connection descriptor
// and hands back a memoized Client. Construction is lazy: the descriptor
// is not opened until the first call, and concurrent first calls collapse
// into a single construction.
//
// Accepted descriptors: a Client (used directly), a func() Client factory,
// a *Binding for the remote backend, or a string (file path, the
// in-memory marker, or a URL).
type Resolver struct {
	descriptor any
	log        *slog.Logger
	watchFile  bool

	group   singleflight.Group
	mu      sync.Mutex
	client  Client
	watcher *fsnotify.Watcher
}

// NewResolver creates a resolver for one descriptor. Nothing is opened
// until the first Client call.
func NewResolver(descriptor any, opts ...Option) *Resolver {
	r := &Resolver{descriptor: descriptor, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Client returns the backend client for the descriptor, constructing it on
// first use and reusing it afterwards. A failed construction is not
// memoized; the next call tries again.
func (r *Resolver) Client(ctx context.Context) (Client, error) {
	r.mu.Lock()
	if r.client != nil {
		c := r.client
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do("construct", func() (any, error) {
		// A previous flight may have stored a client between the
		// fast-path check and this call.
		r.mu.Lock()
		if r.client != nil {
			c := r.client
			r.mu.Unlock()
			return c, nil
		}
		r.mu.Unlock()

		c, err := r.construct(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.client = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Client), nil
}

// construct selects the driver. Order: a ready Client or factory wins,
// then the remote-binding shape, then string descriptors by scheme.
func (r *Resolver) construct(ctx context.Context) (Client, error) {
	switch d := r.descriptor.(type) {
	case Client:
		return d, nil
	case func() Client:
		c := d()
		if c == nil {
			return nil, &InvalidClientError{Value: r.descriptor}
		}
		return c, nil
	case *Binding:
		return NewRemote(d), nil
	case string:
		return r.constructFromString(ctx, d)
	default:
		return nil, &InvalidClientError{Value: r.descriptor}
	}
}

func (r *Resolver) constructFromString(ctx context.Context, descriptor string) (Client, error) {
	backend, err := dburl.Infer(descriptor)
	if err != nil {
		return nil, &UnsupportedRuntimeError{Descriptor: descriptor, Supported: supportedBackends}
	}

	switch backend {
	case dburl.BackendSQLite:
		if !driverRegistered("sqlite") {
			return nil, &UnsupportedRuntimeError{Descriptor: descriptor, Supported: supportedBackends}
		}
		path := dburl.SQLitePath(descriptor)
		c, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		if r.watchFile {
			r.watchSQLiteFile(path)
		}
		r.log.Debug("resolved backend", "backend", backend, "path", path)
		return c, nil

	case dburl.BackendMySQL:
		if !driverRegistered("mysql") {
			return nil, &UnsupportedRuntimeError{Descriptor: descriptor, Supported: supportedBackends}
		}
		c, err := OpenMySQL(descriptor)
		if err != nil {
			return nil, err
		}
		r.log.Debug("resolved backend", "backend", backend)
		return c, nil

	case dburl.BackendPostgres:
		c, err := OpenPostgres(ctx, descriptor)
		if err != nil {
			return nil, err
		}
		r.log.Debug("resolved backend", "backend", backend)
		return c, nil

	case dburl.BackendRemote:
		r.log.Debug("resolved backend", "backend", backend)
		return NewRemote(&Binding{Endpoint: descriptor}), nil
	}

	return nil, &UnsupportedRuntimeError{Descriptor: descriptor, Supported: supportedBackends}
}

// driverRegistered probes the process for an installed database/sql
// driver by registration name.
func driverRegistered(name string) bool {
	return slices.Contains(sql.Drivers(), name)
}

// watchSQLiteFile invalidates the memoized client when the database file
// is replaced underneath us. Watch setup failure downgrades to a warning;
// the resolver still works, it just won't notice replacements.
func (r *Resolver) watchSQLiteFile(path string) {
	if path == dburl.MemoryPath {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.log.Warn("file watch unavailable", "error", err)
		return
	}
	if err := w.Add(path); err != nil {
		w.Close()
		r.log.Warn("file watch unavailable", "path", path, "error", err)
		return
	}

	// Reconstruction after an invalidation installs a fresh watcher; the
	// previous one must be closed or its fd and goroutine stay behind.
	r.mu.Lock()
	old := r.watcher
	r.watcher = w
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					r.log.Info("database file replaced, dropping connection", "path", path)
					r.invalidate()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.log.Warn("file watch error", "error", err)
			}
		}
	}()
}

// invalidate drops the memoized client, closing it when the driver owns a
// handle. The next Client call constructs a fresh one.
func (r *Resolver) invalidate() {
	r.mu.Lock()
	c := r.client
	r.client = nil
	r.mu.Unlock()
	if closer, ok := c.(io.Closer); ok {
		closer.Close()
	}
}

// Close tears the resolver down: the watcher stops and the memoized
// client, if any, is closed. This is the only sanctioned close path;
// operations borrowing the client never close it themselves.
func (r *Resolver) Close() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	c := r.client
	r.client = nil
	r.mu.Unlock()

	if w != nil {
		w.Close()
	}
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
