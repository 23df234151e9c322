package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

// Options configures one call cache instance (spec.md §6.2's Cache
// config block: enable/dir, `--no-cache` at the CLI, and the optional
// Postgres index connection string).
type Options struct {
	Dir         string
	Get         bool // read path enabled (the CLI's --no-cache disables both)
	Put         bool // write path enabled
	DatabaseURL string
}

// Cache is the call cache: a FileStore of record, an optional Index for
// observability, and a Watcher for proactive local-file invalidation.
// Constructed once per run director and shared by every call.
type Cache struct {
	opts  Options
	store Store
	index Index
	watch *Watcher
}

func New(ctx context.Context, opts Options) (*Cache, error) {
	store, err := NewFileStore(opts.Dir)
	if err != nil {
		return nil, err
	}
	var index Index = noIndex{}
	if opts.DatabaseURL != "" {
		index, err = NewPgIndex(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
	}
	watch, err := NewWatcher(store)
	if err != nil {
		return nil, err
	}
	return &Cache{opts: opts, store: store, index: index, watch: watch}, nil
}

// Lookup computes a task's cache key and, if reads are enabled, returns
// its cached outputs restored against outputTypes (spec.md §4.L "entries
// are read iff get = true").
func (c *Cache) Lookup(ctx context.Context, taskName, sourceDigest string, inputs map[string]values.Value, outputTypes map[string]*types.Type) (Key, map[string]values.Value, bool, error) {
	inputDigest, err := InputDigest(inputs)
	if err != nil {
		return "", nil, false, err
	}
	key := NewKey(sourceDigest, inputDigest)
	if !c.opts.Get {
		return key, nil, false, nil
	}
	entry, ok, err := c.store.Get(key)
	_ = c.index.Record(ctx, key, taskName, ok)
	if err != nil || !ok {
		return key, nil, false, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(entry.Outputs, &raw); err != nil {
		return key, nil, false, nil
	}
	outputs := make(map[string]values.Value, len(raw))
	for name, rv := range raw {
		t, ok := outputTypes[name]
		if !ok {
			continue
		}
		v, err := values.FromJSON(rv, t, errs.Pos{})
		if err != nil {
			return key, nil, false, nil
		}
		outputs[name] = v
	}
	return key, outputs, true, nil
}

// Store records a call's resolved outputs under its key, if writes are
// enabled (spec.md §4.L "entries are written iff put = true"), and
// registers the local input/output paths the entry depends on with the
// invalidation watcher.
func (c *Cache) Store(key Key, outputs map[string]values.Value, watchPaths []string) error {
	if !c.opts.Put {
		return nil
	}
	raw := make(map[string]any, len(outputs))
	for name, v := range outputs {
		jv, err := values.ToJSON(v)
		if err != nil {
			return err
		}
		raw[name] = jv
	}
	body, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	entry := &Entry{Key: key, Outputs: body, WatchPaths: watchPaths, WrittenAt: time.Now()}
	if err := c.store.Put(entry); err != nil {
		return err
	}
	c.watch.Watch(key, watchPaths)
	return nil
}

func (c *Cache) Close() error {
	c.watch.Close()
	c.index.Close()
	return c.store.Close()
}
