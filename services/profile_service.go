package services

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// defaultProfile matches the institution data the chatbot shipped with. It is
// used whenever no profile file is configured or readable.
const defaultProfile = `St Joseph Convent School, Varanasi — founded in 1950 by Our Lady of Providence.
The institution serves students from all backgrounds in both English and Hindi medium.
Current Principal: Sister Arul | Manager: Sister Vimala.`

// ProfileService serves the institutional profile text that anchors every
// composite context. When a profile file is configured it is hot reloaded on
// change, so the school can edit the profile without a restart.
type ProfileService interface {
	Profile() string
	Watch(ctx context.Context)
}

type profileServiceImpl struct {
	path string

	mu      sync.RWMutex
	profile string
}

func NewProfileService(path string) ProfileService {
	s := &profileServiceImpl{
		path:    path,
		profile: defaultProfile,
	}
	if path != "" {
		s.reload()
	}
	return s
}

func (s *profileServiceImpl) Profile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *profileServiceImpl) reload() {
	content, err := os.ReadFile(s.path)
	if err != nil {
		log.Printf("SERVICE: Could not read profile file %s: %v", s.path, err)
		return
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		log.Printf("SERVICE: Profile file %s is empty, keeping current profile", s.path)
		return
	}

	s.mu.Lock()
	s.profile = text
	s.mu.Unlock()
	log.Printf("SERVICE: Loaded institution profile from %s", s.path)
}

// Watch is a long-running loop that reloads the profile whenever its file is
// written. Editors replace files rather than write them in place, so the watch
// is on the parent directory and events are matched against the path.
func (s *profileServiceImpl) Watch(ctx context.Context) {
	if s.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WATCHER ERROR: Failed to create profile watcher: %v", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		log.Printf("WATCHER ERROR: Failed to watch %s: %v", dir, err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("WATCHER ERROR: %v", err)
		case <-ctx.Done():
			return
		}
	}
}
