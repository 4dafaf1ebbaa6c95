package io

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/OFFIS-RIT/bookgraph/pkg/loader"

	"golang.org/x/sync/singleflight"
)

// IOChapterLoader loads chapter files directly from the local filesystem
// with caching.
type IOChapterLoader struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewIOChapterLoader creates a new filesystem-based chapter loader.
func NewIOChapterLoader() *IOChapterLoader {
	return &IOChapterLoader{
		cache: make(map[string][]byte),
	}
}

// GetFileText reads the file content from the filesystem. Results are cached.
func (l *IOChapterLoader) GetFileText(ctx context.Context, file loader.ChapterFile) ([]byte, error) {
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

		result, err := os.ReadFile(file.FilePath)
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

// DirSource lists the .txt files below a chapter directory, as written by
// the book splitter.
type DirSource struct {
	root   string
	loader *IOChapterLoader
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root, loader: NewIOChapterLoader()}
}

func (s *DirSource) List(ctx context.Context) ([]loader.ChapterFile, error) {
	var files []loader.ChapterFile
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".txt" {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		chapter := filepath.ToSlash(rel)
		files = append(files, loader.ChapterFile{
			ID:       chapter,
			Chapter:  chapter,
			FilePath: path,
			Loader:   s.loader,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	loader.SortFiles(files)
	return files, nil
}
