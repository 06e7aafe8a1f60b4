// Package framestore provides a read-only view over the per-session frame
// artifacts produced by the rendering worker.
package framestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Frame is one ordered, immutable image artifact on durable storage.
type Frame struct {
	Index int
	Path  string
}

// Read returns the raw frame bytes.
func (f Frame) Read() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read frame %d: %w", f.Index, err)
	}
	return data, nil
}

// Store enumerates the frames currently available for a session.
type Store interface {
	// ListFrames returns the session's frames in strictly increasing index
	// order. A session with no frame directory yet yields an empty list.
	ListFrames(sessionKey string) ([]Frame, error)
}

// Dir is a Store backed by a directory tree: one subdirectory per session
// key, holding frame_<index>.png artifacts written by the rendering worker.
type Dir struct {
	root string
}

// NewDir creates a directory-backed frame store rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

const (
	framePrefix = "frame_"
	frameExt    = ".png"
)

// ListFrames implements Store.
func (d *Dir) ListFrames(sessionKey string) ([]Frame, error) {
	dir := filepath.Join(d.root, sessionKey)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list frames for %s: %w", sessionKey, err)
	}

	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		idx, ok := parseFrameIndex(entry.Name())
		if !ok {
			continue
		}
		frames = append(frames, Frame{Index: idx, Path: filepath.Join(dir, entry.Name())})
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].Index < frames[j].Index })
	return frames, nil
}

// FramePath returns where a frame with the given index would live. Used by
// the rendering worker's drop convention and by tests.
func (d *Dir) FramePath(sessionKey string, index int) string {
	return filepath.Join(d.root, sessionKey, fmt.Sprintf("%s%d%s", framePrefix, index, frameExt))
}

func parseFrameIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, framePrefix) || !strings.HasSuffix(name, frameExt) {
		return 0, false
	}
	idx, err := strconv.Atoi(name[len(framePrefix) : len(name)-len(frameExt)])
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
