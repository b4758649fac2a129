package lavender

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// LockPath is the marker location below a destination root.
const LockPath = "tmp/lavender.lock"

const (
	defaultPollInterval = time.Second
	defaultNotifyEvery  = 10
)

// LockObserver is told about progress while AcquireLock waits.
type LockObserver interface {
	LockWaiting(path string, waited time.Duration)
}

// LockObserverFunc adapts a function to LockObserver.
type LockObserverFunc func(path string, waited time.Duration)

func (f LockObserverFunc) LockWaiting(path string, waited time.Duration) { f(path, waited) }

type logObserver struct {
	log logrus.FieldLogger
}

// LogObserver reports lock waits to log at info level.
func LogObserver(log logrus.FieldLogger) LockObserver {
	return logObserver{log: log}
}

func (o logObserver) LockWaiting(path string, waited time.Duration) {
	o.log.WithFields(logrus.Fields{
		"lock":   path,
		"waited": waited.Round(time.Second).String(),
	}).Info("waiting for lock")
}

// LockOption configures AcquireLock.
type LockOption func(*lockOptions)

type lockOptions struct {
	interval    time.Duration
	notifyEvery int
	observer    LockObserver
}

// WithPollInterval sets the sleep between two attempts to create the marker.
func WithPollInterval(d time.Duration) LockOption {
	return func(o *lockOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithNotifyEvery sets how many failed attempts pass between two
// observer notifications.
func WithNotifyEvery(n int) LockOption {
	return func(o *lockOptions) {
		if n > 0 {
			o.notifyEvery = n
		}
	}
}

// WithLockObserver sets the observer notified while waiting.
func WithLockObserver(obs LockObserver) LockOption {
	return func(o *lockOptions) { o.observer = obs }
}

// Lock is a held (or deliberately absent) publish lock on a destination.
type Lock struct {
	root   Node
	marker Node
	owner  string

	once sync.Once
	err  error
}

// AcquireLock creates the lock marker below root, waiting up to maxWait
// while another holder owns it. Only "already exists" failures are retried;
// any other error is returned at once. When the wait is exhausted the
// error matches ErrLockTimeout. A negative maxWait is treated as zero.
func AcquireLock(ctx context.Context, root Node, owner string, maxWait time.Duration, opts ...LockOption) (*Lock, error) {
	o := lockOptions{interval: defaultPollInterval, notifyEvery: defaultNotifyEvery}
	for _, opt := range opts {
		opt(&o)
	}

	if maxWait < 0 {
		maxWait = 0
	}
	marker := root.Join(LockPath)
	tries := uint(maxWait/o.interval) + 1
	failed := 0

	operation := func() (struct{}, error) {
		err := marker.Mkfile()
		if err == nil || errors.Is(err, fs.ErrExist) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}
	notify := func(error, time.Duration) {
		failed++
		if o.observer != nil && failed%o.notifyEvery == 0 {
			o.observer.LockWaiting(marker.String(), time.Duration(failed)*o.interval)
		}
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(o.interval)),
		backoff.WithMaxTries(tries),
		backoff.WithMaxElapsedTime(maxWait+o.interval),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s held by %s after %s", ErrLockTimeout, marker, describeOwner(marker), maxWait)
		}
		return nil, fmt.Errorf("acquire lock %s: %w", marker, err)
	}

	l := &Lock{root: root, marker: marker, owner: owner}
	if err := marker.WriteString(owner); err != nil {
		return nil, errors.Join(fmt.Errorf("write lock owner: %w", err), l.Release())
	}
	return l, nil
}

// Unlocked returns a handle that performs no locking. Use it only when the
// caller has exclusive access to root by other means.
func Unlocked(root Node) *Lock {
	return &Lock{root: root}
}

// WithLock runs fn while holding the lock on root and releases the lock
// on every return path.
func WithLock(ctx context.Context, root Node, owner string, maxWait time.Duration, fn func(*Lock) error, opts ...LockOption) (err error) {
	l, err := AcquireLock(ctx, root, owner, maxWait, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(l)
}

// Root returns the destination the lock guards.
func (l *Lock) Root() Node { return l.root }

// Join resolves names below the destination root.
func (l *Lock) Join(names ...string) Node { return l.root.Join(names...) }

// Owner returns the owner token, empty for unlocked handles.
func (l *Lock) Owner() string { return l.owner }

// Held reports whether this handle created a marker.
func (l *Lock) Held() bool { return l.marker != nil }

// Release deletes the marker created by this handle. It is safe to call
// more than once.
func (l *Lock) Release() error {
	if l.marker == nil {
		return nil
	}
	l.once.Do(func() {
		if err := l.marker.DeleteFile(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.err = fmt.Errorf("release lock %s: %w", l.marker, err)
		}
	})
	return l.err
}

// ReadLockOwner returns the owner written into the marker below root.
func ReadLockOwner(root Node) (string, bool, error) {
	data, err := root.Join(LockPath).ReadAll()
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(string(data)), true, nil
}

// BreakLock removes a stale marker left by a crashed holder. It reports
// whether a marker was present.
func BreakLock(root Node) (bool, error) {
	err := root.Join(LockPath).DeleteFile()
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func describeOwner(marker Node) string {
	data, err := marker.ReadAll()
	if err != nil || len(data) == 0 {
		return "unknown owner"
	}
	return strings.TrimSpace(string(data))
}
