package lavender

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Problem is a published file that does not match its index entry.
type Problem struct {
	Label  Label
	Reason string
}

func (p Problem) String() string {
	return p.Label.OriginalPath + ": " + p.Reason
}

// Verify re-reads every file listed in the destination index and checks
// its digest. Missing files and digest mismatches are reported as problems;
// only failures to read the index or the destination are errors.
func Verify(ctx context.Context, dest Node, opts ...Option) ([]Problem, error) {
	o := newOptions(opts)
	hash, err := NewHasher(o.Digest)
	if err != nil {
		return nil, err
	}
	indexNode := dest.Join(IndexPath(o.IndexName))
	if ok, err := indexNode.Exists(); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: index %s", ErrNotFound, indexNode)
	}
	idx, err := LoadIndexNode(indexNode)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		problems []Problem
	)
	report := func(l Label, reason string) {
		mu.Lock()
		problems = append(problems, Problem{Label: l, Reason: reason})
		mu.Unlock()
	}

	wp := pool.New().WithMaxGoroutines(o.Concurrency).WithContext(ctx).WithCancelOnError()
	for label := range idx.Labels() {
		wp.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := dest.Join(label.PublishedPath).ReadAll()
			if errors.Is(err, fs.ErrNotExist) {
				report(label, "missing "+label.PublishedPath)
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", label.PublishedPath, err)
			}
			if got := hash(data); !got.Equal(label.Digest) {
				report(label, fmt.Sprintf("digest %s, want %s", got, label.Digest))
			}
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(problems, func(a, b Problem) int {
		return strings.Compare(a.Label.OriginalPath, b.Label.OriginalPath)
	})
	o.Logger.WithField("entries", idx.Len()).WithField("problems", len(problems)).Info("verify complete")
	return problems, nil
}
