package lavender

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/lavender/internal/compression"
)

// Stats summarizes one publish run.
type Stats struct {
	Modules   int
	Resources int
	// CacheHits counts resources whose digest came from the digest cache.
	CacheHits int
	// Hashed counts resources that had to be read and hashed.
	Hashed int
	// Published counts files written to the destination.
	Published int
	// Unchanged counts resources whose published file was already in place.
	Unchanged int
	// Duplicates counts resources another module already published identically.
	Duplicates int
}

type publisher struct {
	opts       *Options
	log        logrus.FieldLogger
	hash       Hasher
	compressor *compression.Compressor

	root  *Lock
	prev  *Index
	index *Index
	// original paths yielded by the modules of this run
	seen  map[string]bool
	stats Stats
}

type pending struct {
	res    Resource
	digest Digest
	data   []byte
}

// Publish hashes the resources of modules and writes every resource the
// destination does not hold yet under its published path. The index at
// IndexPath(name) is replaced with the labels of this run. With
// WithMergeIndex the previous entries for paths no module of this run
// yields are kept, so a subset of modules can be republished. The destination is locked for the whole run unless
// WithoutLock is given.
//
// A conflicting label aborts the run before the index is saved. Files
// already written stay in place; they are named by content and harmless.
func Publish(ctx context.Context, dest Node, modules []Module, opts ...Option) (stats Stats, err error) {
	o := newOptions(opts)
	hash, err := NewHasher(o.Digest)
	if err != nil {
		return stats, err
	}

	p := &publisher{opts: o, log: o.Logger, hash: hash}
	if len(o.Precompress) > 0 {
		p.compressor, err = compression.NewCompressor(2, o.Precompress...)
		if err != nil {
			return stats, fmt.Errorf("precompress: %w", err)
		}
		defer p.compressor.Close()
	}

	if o.NoLock {
		p.root = Unlocked(dest)
	} else {
		lockOpts := append([]LockOption{WithLockObserver(LogObserver(o.Logger))}, o.LockOptions...)
		p.root, err = AcquireLock(ctx, dest, o.Owner, o.LockWait, lockOpts...)
		if err != nil {
			return stats, err
		}
	}
	defer func() {
		if rerr := p.root.Release(); rerr != nil && err == nil {
			err = fmt.Errorf("release lock: %w", rerr)
		}
	}()

	start := time.Now()
	if err := p.run(ctx, modules); err != nil {
		return p.stats, err
	}
	p.log.WithFields(logrus.Fields{
		"modules":   p.stats.Modules,
		"resources": p.stats.Resources,
		"hashed":    p.stats.Hashed,
		"published": p.stats.Published,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("publish complete")
	return p.stats, nil
}

func (p *publisher) run(ctx context.Context, modules []Module) error {
	indexNode := p.root.Join(IndexPath(p.opts.IndexName))
	prev, err := LoadIndexNode(indexNode)
	if err != nil {
		return fmt.Errorf("load index %s: %w", indexNode, err)
	}
	p.prev = prev
	p.index = NewIndex()
	p.seen = make(map[string]bool)

	for _, m := range modules {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.publishModule(ctx, m); err != nil {
			return fmt.Errorf("module %s: %w", m.Name(), err)
		}
		p.stats.Modules++
	}

	if p.opts.MergeIndex {
		if err := p.carryOver(); err != nil {
			return err
		}
	}
	if p.index.Equal(prev) && indexExists(indexNode) {
		return nil
	}
	if err := p.index.SaveNode(indexNode); err != nil {
		return fmt.Errorf("save index %s: %w", indexNode, err)
	}
	p.log.WithField("index", indexNode.Path()).WithField("entries", p.index.Len()).Debug("index saved")
	return nil
}

// carryOver copies the previous entries of paths this run did not yield.
func (p *publisher) carryOver() error {
	kept := 0
	for label := range p.prev.Labels() {
		if p.seen[label.OriginalPath] {
			continue
		}
		if _, err := p.index.Add(label); err != nil {
			return err
		}
		kept++
	}
	if kept > 0 {
		p.log.WithField("kept", kept).Debug("merged previous index entries")
	}
	return nil
}

func indexExists(node Node) bool {
	ok, err := node.Exists()
	return err == nil && ok
}

func (p *publisher) publishModule(ctx context.Context, m Module) error {
	log := p.log.WithField("module", m.Name())

	cache, err := LoadOrCreateCache(p.opts.CacheDir, m.Name(), WithCacheAlgorithm(p.opts.Digest))
	if err != nil {
		return err
	}

	var items []*pending
	seen := make(map[string]bool)
	for res, err := range m.Resources() {
		if err != nil {
			return err
		}
		seen[res.Path()] = true
		p.seen[res.Path()] = true
		items = append(items, &pending{res: res})
	}
	p.stats.Resources += len(items)

	if err := p.digest(ctx, cache, items); err != nil {
		return err
	}
	if n := cache.Prune(func(path string) bool { return seen[path] }); n > 0 {
		log.WithField("pruned", n).Debug("dropped stale cache entries")
	}
	if err := cache.Save(); err != nil {
		return fmt.Errorf("save digest cache: %w", err)
	}

	lavendelize := lavendelizes(m)
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.place(it, lavendelize, log); err != nil {
			return err
		}
	}
	return nil
}

// digest fills in the digest of every item, from the cache where the
// revision matches and by reading and hashing otherwise.
func (p *publisher) digest(ctx context.Context, cache *DigestCache, items []*pending) error {
	wp := pool.New().WithMaxGoroutines(p.opts.Concurrency).WithContext(ctx).WithCancelOnError()
	var misses []*pending
	for _, it := range items {
		if d, ok := cache.Lookup(it.res.Path(), it.res.RevisionID()); ok {
			it.digest = d
			p.stats.CacheHits++
			continue
		}
		misses = append(misses, it)
		wp.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := it.res.ReadAll()
			if err != nil {
				return fmt.Errorf("read %s: %w", it.res.Path(), err)
			}
			it.data = data
			it.digest = p.hash(data)
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		return err
	}
	for _, it := range misses {
		cache.Add(it.res.Path(), it.res.RevisionID(), it.digest)
	}
	p.stats.Hashed += len(misses)
	return nil
}

func (p *publisher) place(it *pending, lavendelize bool, log logrus.FieldLogger) error {
	original := it.res.Path()
	published := original
	if lavendelize {
		published = Lavendelize(original, it.digest, p.opts.HashLength)
	}
	label := NewLabel(original, published, it.digest)
	defer func() { it.data = nil }()

	added, err := p.index.Add(label)
	if err != nil {
		return err
	}
	if !added {
		p.stats.Duplicates++
		return nil
	}
	if old, ok, err := p.prev.Lookup(original); err == nil && ok && old.Equal(label) {
		if exists, err := p.root.Join(published).Exists(); err == nil && exists {
			p.stats.Unchanged++
			return nil
		}
	}

	data := it.data
	if data == nil {
		var err error
		if data, err = it.res.ReadAll(); err != nil {
			return fmt.Errorf("read %s: %w", original, err)
		}
	}
	written, err := p.upload(published, it.digest, data, lavendelize)
	if err != nil {
		return err
	}
	if !written {
		p.stats.Unchanged++
		return nil
	}
	p.stats.Published++
	log.WithField("path", published).Debug("published")
	return nil
}

// upload writes data to published unless an identical file is already
// there. A hash-named file holding different content is a conflict; plain
// files are overwritten.
func (p *publisher) upload(published string, digest Digest, data []byte, hashNamed bool) (bool, error) {
	node := p.root.Join(published)
	existing, err := node.ReadAll()
	switch {
	case err == nil:
		if p.hash(existing).Equal(digest) {
			return false, nil
		}
		if hashNamed {
			return false, fmt.Errorf("%w: %s already holds different content", ErrConflict, published)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return false, err
	}

	if err := writeAtomic(node, data); err != nil {
		return false, fmt.Errorf("write %s: %w", published, err)
	}
	if p.compressor == nil {
		return true, nil
	}
	for _, enc := range p.compressor.Encodings() {
		compressed, ok, err := p.compressor.Compress(enc, data)
		if err != nil {
			return false, fmt.Errorf("compress %s: %w", published, err)
		}
		if !ok {
			continue
		}
		if err := writeAtomic(p.root.Join(published+compression.Ext(enc)), compressed); err != nil {
			return false, fmt.Errorf("write %s: %w", published+compression.Ext(enc), err)
		}
	}
	return true, nil
}
