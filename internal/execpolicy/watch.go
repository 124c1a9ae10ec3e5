package execpolicy

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/seeky/internal/logger"
)

// LivePolicy is a rule set file that is reloaded whenever it changes on
// disk. A version that fails to load, or whose known-bad examples classify
// as safe, is logged and the previous rules stay in force.
type LivePolicy struct {
	path    string
	current atomic.Pointer[Policy]
	reloads atomic.Uint64

	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	log       *logger.Logger
}

// WatchPolicyFile loads path and keeps following it. The initial load must
// succeed.
func WatchPolicyFile(path string) (*LivePolicy, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("policy path: %w", err)
	}
	p, err := loadVerified(abs)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch policy: %w", err)
	}
	// Editors and config managers replace files by rename, which drops a
	// watch on the file itself; watch the directory instead.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch policy: %w", err)
	}

	l := &LivePolicy{
		path:      abs,
		watcher:   watcher,
		stopWatch: make(chan struct{}),
		done:      make(chan struct{}),
		log:       logger.Global().WithPrefix("execpolicy"),
	}
	l.current.Store(p)
	go l.watch()
	return l, nil
}

// Policy returns the rules currently in force.
func (l *LivePolicy) Policy() *Policy { return l.current.Load() }

func (l *LivePolicy) Evaluate(argv []string) Match { return l.current.Load().Evaluate(argv) }

// Reloads counts successful reloads after the initial load.
func (l *LivePolicy) Reloads() uint64 { return l.reloads.Load() }

func (l *LivePolicy) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stopWatch)
		err = l.watcher.Close()
		<-l.done
	})
	return err
}

func (l *LivePolicy) watch() {
	defer close(l.done)
	for {
		select {
		case <-l.stopWatch:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != l.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			l.reload()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Error("policy watcher error: %v", err)
		}
	}
}

func (l *LivePolicy) reload() {
	p, err := loadVerified(l.path)
	if err != nil {
		l.log.Warn("keeping previous rules, reload of %s failed: %v", l.path, err)
		return
	}
	l.current.Store(p)
	l.reloads.Add(1)
	l.log.Info("reloaded %s: %d rules", l.path, len(p.rules))
}

func loadVerified(path string) (*Policy, error) {
	p, err := LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	if v := p.CheckEachBadListIndividually(); len(v) > 0 {
		return nil, fmt.Errorf("%s: %d known-bad examples classify as safe, first: %s", path, len(v), v[0])
	}
	return p, nil
}
