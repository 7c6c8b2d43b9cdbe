package images

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	src, err := FromImage(getTestImage(), 3)
	require.NoError(t, err)

	for _, name := range []string{"frame-10.png", "frame-2.png", "frame-1.jpg", "poster.webp", "alpha.png"} {
		require.NoError(t, WriteFile(filepath.Join(dir, name), src))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame-3.png"), 0o755))

	frames, err := ListFrames(dir)
	require.NoError(t, err)

	var names []string
	var indices []int
	for _, f := range frames {
		names = append(names, filepath.Base(f.Path))
		indices = append(indices, f.Index)
	}
	assert.Equal(t, []string{"frame-1.jpg", "frame-2.png", "frame-10.png", "alpha.png", "poster.webp"}, names)
	assert.Equal(t, []int{1, 2, 10, 11, 12}, indices)

	b, err := frames[1].Load(1)
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Width: 40, Height: 30, Channels: 1, Type: Uint8}, b.Descriptor())

	_, err = ListFrames(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
