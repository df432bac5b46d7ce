package htmldoc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hazyhaar/capwatch/internal/locator"
)

// Replay serves one frame at a time out of an ordered list of snapshots.
// It is safe for concurrent use: the session queries it while a driver
// goroutine advances it.
type Replay struct {
	mu     sync.RWMutex
	frames []*Document
	names  []string
	pos    int
}

// NewReplay creates a Replay positioned on the first frame.
func NewReplay(frames ...*Document) *Replay {
	names := make([]string, len(frames))
	for i := range frames {
		names[i] = fmt.Sprintf("frame-%d", i)
	}
	return &Replay{frames: frames, names: names}
}

// LoadDir parses every *.html / *.htm file in dir, ordered by file name.
func LoadDir(dir string) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: read dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".html" || ext == ".htm" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("htmldoc: no snapshots in %s", dir)
	}

	r := &Replay{}
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("htmldoc: read %s: %w", name, err)
		}
		doc, err := ParseBytes(data)
		if err != nil {
			return nil, fmt.Errorf("htmldoc: %s: %w", name, err)
		}
		r.frames = append(r.frames, doc)
		r.names = append(r.names, name)
	}
	return r, nil
}

// Len returns the number of frames.
func (r *Replay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// Current returns the index and name of the frame being served.
func (r *Replay) Current() (int, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.frames) == 0 {
		return -1, ""
	}
	return r.pos, r.names[r.pos]
}

// Next advances to the following frame. It returns false when the last frame
// is already being served.
func (r *Replay) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos+1 >= len(r.frames) {
		return false
	}
	r.pos++
	return true
}

// QueryAll implements locator.Document against the current frame.
func (r *Replay) QueryAll(ctx context.Context, selector string) ([]locator.Element, error) {
	r.mu.RLock()
	if len(r.frames) == 0 {
		r.mu.RUnlock()
		return nil, nil
	}
	doc := r.frames[r.pos]
	r.mu.RUnlock()
	return doc.QueryAll(ctx, selector)
}
