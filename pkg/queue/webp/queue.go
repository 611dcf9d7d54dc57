// Package webp converts poster images to WebP on a single worker.
package webp

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/webp"

	"cinedex/pkg/queue"
)

// DefaultCapacity bounds how many conversions may wait for the worker.
const DefaultCapacity = 32

type Queue struct {
	stop  chan struct{}
	items chan *Item
	once  sync.Once
}

type Item struct {
	Request  *queue.Request
	Response chan []byte
	Error    chan error
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		items: make(chan *Item, capacity),
		stop:  make(chan struct{}),
	}
}

func (q *Queue) Start() {
	go q.processLoop()
}

func (q *Queue) Stop() {
	q.once.Do(func() { close(q.stop) })
}

// Add enqueues a conversion without blocking. A full queue returns
// queue.ErrFull.
func (q *Queue) Add(req *queue.Request) (chan []byte, chan error, error) {
	respCh := make(chan []byte, 1)
	errCh := make(chan error, 1)

	select {
	case q.items <- &Item{
		Request:  req,
		Response: respCh,
		Error:    errCh,
	}:
		return respCh, errCh, nil
	default:
		return nil, nil, queue.ErrFull
	}
}

func (q *Queue) processLoop() {
	log.Info("poster queue started", "capacity", cap(q.items))
	for {
		select {
		case <-q.stop:
			log.Info("poster queue stopped")
			return
		case item := <-q.items:
			q.processItem(item)
		}
	}
}

func (q *Queue) processItem(item *Item) {
	req := item.Request
	log.Debug("converting poster", "source", req.Source)

	data, err := Convert(req.Source, req.Dest, req.Quality)
	if err != nil {
		log.Error("poster conversion failed", "source", req.Source, "error", err)
		item.Error <- err
		close(item.Response)
		return
	}

	item.Response <- data
	close(item.Error)
}

// Convert decodes a JPEG or PNG at src and writes it to dst as WebP.
// The encoded bytes are returned.
func Convert(src, dst string, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", src, err)
	}

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, webp.Options{Lossless: false, Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	return buf.Bytes(), nil
}
