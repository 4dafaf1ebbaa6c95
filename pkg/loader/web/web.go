package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/bookgraph/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/singleflight"
)

// WebChapterLoader loads chapters from web URLs and extracts readable text.
// For HTML pages, it uses readability to extract the main content.
type WebChapterLoader struct {
	client *http.Client
	urls   []string

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewWebChapterLoader creates a loader whose chapters are urls, in the
// given order. A nil client uses http.DefaultClient.
func NewWebChapterLoader(client *http.Client, urls []string) *WebChapterLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebChapterLoader{
		client: client,
		urls:   urls,
		cache:  make(map[string][]byte),
	}
}

// List returns one chapter per URL. Chapter keys are "web/NN.txt", NN
// being the position of the URL, so the given order is the sorted order.
func (l *WebChapterLoader) List(context.Context) ([]loader.ChapterFile, error) {
	files := make([]loader.ChapterFile, 0, len(l.urls))
	for i, u := range l.urls {
		if _, err := url.ParseRequestURI(u); err != nil {
			return nil, fmt.Errorf("invalid chapter url %q: %w", u, err)
		}
		chapter := fmt.Sprintf("web/%03d.txt", i+1)
		files = append(files, loader.ChapterFile{
			ID:       chapter,
			Chapter:  chapter,
			FilePath: u,
			Loader:   l,
		})
	}
	return files, nil
}

// GetFileText fetches a URL and extracts readable text content.
// For HTML pages, it uses readability to extract the main article content.
func (l *WebChapterLoader) GetFileText(ctx context.Context, file loader.ChapterFile) ([]byte, error) {
	key := loader.CacheKey(file)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		result, err := l.fetch(ctx, file.FilePath)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = result
		l.cacheMu.Unlock()

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

func (l *WebChapterLoader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	// Old book sites still serve windows-1251.
	contentType := resp.Header.Get("Content-Type")
	body, err := charset.NewReader(resp.Body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to detect charset: %w", err)
	}

	if strings.Contains(contentType, "text/html") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse url: %w", err)
		}
		article, err := readability.FromReader(body, u)
		if err != nil {
			return nil, fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return nil, fmt.Errorf("failed to render article text: %w", err)
		}
		return []byte(builder.String()), nil
	}

	return io.ReadAll(body)
}
