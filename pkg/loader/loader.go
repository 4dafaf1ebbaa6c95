package loader

import (
	"context"
	"sort"
)

// ChapterFile is one chapter to extract from. Chapter is the key the
// extraction is stored under and the order chapters are processed in;
// FilePath is where the Loader reads the text from.
//
// The actual file content is retrieved via the associated ChapterLoader.
type ChapterFile struct {
	ID       string
	Chapter  string
	FilePath string
	Loader   ChapterLoader
}

// GetText retrieves the raw text content of the file using its Loader.
//
// Example:
//
//	text, err := file.GetText(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(string(text))
func (f ChapterFile) GetText(ctx context.Context) ([]byte, error) {
	return f.Loader.GetFileText(ctx, f)
}

// ChapterLoader defines the interface for loading the contents of a
// ChapterFile. Implementations may load files from disk, cloud storage, or
// the web.
type ChapterLoader interface {
	GetFileText(ctx context.Context, file ChapterFile) ([]byte, error)
}

// Source lists the chapters of a book. Implementations return them sorted
// by Chapter, so every run visits chapters in the same order.
type Source interface {
	List(ctx context.Context) ([]ChapterFile, error)
}

// CacheKey identifies a file in the per-loader read cache.
func CacheKey(file ChapterFile) string {
	return file.ID + ":" + file.FilePath
}

// SortFiles orders files by chapter key.
func SortFiles(files []ChapterFile) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Chapter < files[j].Chapter
	})
}
