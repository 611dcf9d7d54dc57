package poster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/gen2brain/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinedex/pkg/queue"
	queuewebp "cinedex/pkg/queue/webp"
)

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 24))
	for x := range 16 {
		for y := range 24 {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y * 10), B: uint8(x * 10), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestThumbnailConvertsAndCaches(t *testing.T) {
	posters := t.TempDir()
	cache := t.TempDir()
	writeJPEG(t, filepath.Join(posters, "iron-man.jpg"))

	q := queuewebp.New(4)
	q.Start()
	defer q.Stop()

	s := New(map[string]string{"marvel": posters}, cache, q)
	data, err := s.Thumbnail(context.Background(), "marvel", "iron-man.jpg")
	require.NoError(t, err)

	img, err := webp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.FileExists(t, filepath.Join(cache, "marvel", "iron-man.webp"))

	// A fresh service reads the rendition from disk without converting.
	again := New(map[string]string{"marvel": posters}, cache, stuckQueue{})
	cached, err := again.Thumbnail(context.Background(), "marvel", "iron-man.webp")
	require.NoError(t, err)
	assert.Equal(t, data, cached)
}

func TestThumbnailNotFound(t *testing.T) {
	s := New(map[string]string{"marvel": t.TempDir()}, t.TempDir(), stuckQueue{})

	_, err := s.Thumbnail(context.Background(), "marvel", "thor.jpg")
	assert.ErrorIs(t, err, ErrNoPoster)

	_, err = s.Thumbnail(context.Background(), "dc", "batman.jpg")
	assert.ErrorIs(t, err, ErrNoPoster)

	_, err = s.Thumbnail(context.Background(), "marvel", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNoPoster)
}

func TestThumbnailQueueFull(t *testing.T) {
	posters := t.TempDir()
	writeJPEG(t, filepath.Join(posters, "thor.jpg"))

	s := New(map[string]string{"marvel": posters}, t.TempDir(), stuckQueue{})
	_, err := s.Thumbnail(context.Background(), "marvel", "thor.jpg")
	assert.ErrorIs(t, err, ErrQueueFull)
}

// stuckQueue rejects every request.
type stuckQueue struct{}

func (stuckQueue) Start() {}
func (stuckQueue) Stop()  {}
func (stuckQueue) Add(*queue.Request) (chan []byte, chan error, error) {
	return nil, nil, queue.ErrFull
}
