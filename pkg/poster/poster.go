// Package poster serves franchise posters as cached WebP thumbnails.
package poster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"cinedex/pkg/flight"
	"cinedex/pkg/metrics"
	"cinedex/pkg/queue"
	"cinedex/pkg/utils"
)

var (
	ErrQueueFull = queue.ErrFull
	ErrNoPoster  = errors.New("poster: not found")
)

// ContentType is the type of every body Thumbnail returns.
const ContentType = "image/webp"

// sourceExts are tried, in order, when looking for the original image.
var sourceExts = []string{".webp", ".jpg", ".jpeg", ".png"}

type Service struct {
	dirs     map[string]string
	cacheDir string
	quality  int
	q        queue.Queue
	memo     *flight.Cache[string, []byte]
}

// New serves posters from dirs (franchise slug -> directory), writing
// converted files under cacheDir. q must already be started.
func New(dirs map[string]string, cacheDir string, q queue.Queue) *Service {
	s := &Service{
		dirs:     dirs,
		cacheDir: cacheDir,
		quality:  80,
		q:        q,
	}
	s.memo = flight.NewCache(s.load)
	s.memo.Expiry(10 * time.Minute)
	return s
}

// Thumbnail returns the WebP rendition of a franchise poster. file may
// name the original ("iron-man.jpg") or the rendition ("iron-man.webp").
func (s *Service) Thumbnail(ctx context.Context, franchise, file string) ([]byte, error) {
	franchise = utils.SanitizeFilename(strings.ToLower(franchise))
	base := utils.SanitizeFilename(strings.TrimSuffix(file, filepath.Ext(file)))
	if franchise == "" || base == "" || strings.HasPrefix(base, ".") {
		return nil, fmt.Errorf("%w: %q", ErrNoPoster, file)
	}
	if _, ok := s.dirs[franchise]; !ok {
		return nil, fmt.Errorf("%w: no poster directory for %s", ErrNoPoster, franchise)
	}
	return s.memo.Get(ctx, franchise+"/"+base)
}

func (s *Service) load(ctx context.Context, key string) ([]byte, error) {
	franchise, base, _ := strings.Cut(key, "/")
	cached := filepath.Join(s.cacheDir, franchise, base+".webp")

	if data, err := os.ReadFile(cached); err == nil {
		metrics.PosterConversions.WithLabelValues("hit").Inc()
		log.Debug("poster cache hit", "file", cached)
		return data, nil
	}

	src, err := s.source(franchise, base)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(src), ".webp") {
		metrics.PosterConversions.WithLabelValues("hit").Inc()
		return os.ReadFile(src)
	}

	respCh, errCh, err := s.q.Add(&queue.Request{Source: src, Dest: cached, Quality: s.quality})
	if err != nil {
		metrics.PosterConversions.WithLabelValues("rejected").Inc()
		log.Warn("poster queue rejected conversion", "source", src, "error", err)
		return nil, err
	}

	var data []byte
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err = <-errCh:
		if err == nil {
			data = <-respCh
		}
	case d, ok := <-respCh:
		if !ok {
			err = <-errCh
		}
		data = d
	}
	if err != nil {
		metrics.PosterConversions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("converting %s: %w", filepath.Base(src), err)
	}
	metrics.PosterConversions.WithLabelValues("converted").Inc()
	log.Info("converted poster", "source", src, "bytes", len(data))
	return data, nil
}

func (s *Service) source(franchise, base string) (string, error) {
	dir := s.dirs[franchise]
	for _, ext := range sourceExts {
		p := filepath.Join(dir, base+ext)
		if utils.Exists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s/%s", ErrNoPoster, franchise, base)
}
