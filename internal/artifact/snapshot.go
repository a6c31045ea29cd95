// Package artifact finds files a browser download produced and moves them
// into the run's artifact directory.
package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"autolecture/log"
	apperrors "autolecture/pkg/errors"
)

var ErrStaleSnapshot = errors.New("snapshot already consumed; take a new one")

// Snapshot records which files with a given extension existed in a watched
// directory at one moment.
type Snapshot struct {
	Dir   string
	Ext   string
	Taken time.Time

	mu       sync.Mutex
	initial  map[string]struct{}
	consumed bool
}

type entry struct {
	name    string
	modTime time.Time
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// TakeSnapshot lists dir. A missing directory is a fatal configuration
// problem rather than an empty snapshot.
func TakeSnapshot(dir, ext string) (*Snapshot, error) {
	s := &Snapshot{Dir: dir, Ext: normalizeExt(ext), Taken: time.Now()}
	entries, err := s.list()
	if err != nil {
		return nil, err
	}
	s.initial = make(map[string]struct{}, len(entries))
	for _, e := range entries {
		s.initial[e.name] = struct{}{}
	}
	log.GetLogger().Debug("[Artifact] snapshot taken",
		zap.String("dir", dir), zap.String("ext", s.Ext), zap.Int("files", len(entries)))
	return s, nil
}

func (s *Snapshot) list() ([]entry, error) {
	info, err := os.Stat(s.Dir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return nil, apperrors.WrapWithDetail(apperrors.CodeWatchDirMissing, "watched download directory is missing", s.Dir, err)
	}
	dirEntries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeWatchDirMissing, "watched download directory is unreadable", s.Dir, err)
	}

	var out []entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), s.Ext) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, entry{name: de.Name(), modTime: fi.ModTime()})
	}
	return out, nil
}

// Contains reports whether name was present when the snapshot was taken.
func (s *Snapshot) Contains(name string) bool {
	_, ok := s.initial[name]
	return ok
}

// Newest returns the newest file not present in the initial listing.
func (s *Snapshot) Newest() (string, bool, error) {
	entries, err := s.list()
	if err != nil {
		return "", false, err
	}
	fresh := lo.Filter(entries, func(e entry, _ int) bool { return !s.Contains(e.name) })
	if len(fresh) == 0 {
		return "", false, nil
	}
	best := lo.MaxBy(fresh, func(a, b entry) bool {
		if a.modTime.Equal(b.modTime) {
			return a.name > b.name
		}
		return a.modTime.After(b.modTime)
	})
	return filepath.Join(s.Dir, best.name), true, nil
}

// WaitForNewFile polls until a new matching file appears or maxWait
// elapses. A snapshot yields at most one file.
func (s *Snapshot) WaitForNewFile(ctx context.Context, maxWait, pollInterval time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return "", ErrStaleSnapshot
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	deadline := time.Now().Add(maxWait)
	for {
		path, ok, err := s.Newest()
		if err != nil {
			return "", err
		}
		if ok {
			s.consumed = true
			log.GetLogger().Info("[Artifact] new file detected", zap.String("path", path))
			return path, nil
		}
		if !time.Now().Before(deadline) {
			return "", apperrors.WrapWithDetail(apperrors.CodeArtifactTimeout,
				"no new "+s.Ext+" file appeared", s.Dir, context.DeadlineExceeded)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(min(pollInterval, time.Until(deadline)+time.Millisecond)):
		}
	}
}
