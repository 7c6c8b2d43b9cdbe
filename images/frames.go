package images

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Frame is one image file of a frame sequence.
type Frame struct {
	// Path is the path to the image file.
	Path string
	// Index is the frame number parsed from names like "frame-12.png", or the
	// position in lexical order when the name carries no number.
	Index int
}

// ListFrames returns the decodable image files of dir ordered by frame number.
//
// Arguments:
//   - dir: Directory holding the frames.
//
// Returns:
//   - []Frame: The frames, numbered frames first in numeric order, the rest by name.
//   - error: Error if the directory cannot be read.
func ListFrames(dir string) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", dir)
	}

	var numbered, named []Frame
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, err := FormatFromPath(name); err != nil {
			continue
		}
		frame := Frame{Path: filepath.Join(dir, name), Index: -1}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if n, err := strconv.Atoi(strings.TrimPrefix(stem, "frame-")); err == nil {
			frame.Index = n
			numbered = append(numbered, frame)
			continue
		}
		named = append(named, frame)
	}

	sort.Slice(numbered, func(i, j int) bool { return numbered[i].Index < numbered[j].Index })
	sort.Slice(named, func(i, j int) bool { return named[i].Path < named[j].Path })

	next := 0
	if len(numbered) > 0 {
		next = numbered[len(numbered)-1].Index + 1
	}
	for i := range named {
		named[i].Index = next + i
	}
	return append(numbered, named...), nil
}

// Load decodes the frame into a one- or three-channel buffer.
func (f Frame) Load(channels int) (*Buffer[uint8], error) {
	return ReadFile(f.Path, channels)
}
