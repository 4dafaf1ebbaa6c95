package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/OFFIS-RIT/bookgraph/pkg/loader"
)

// API is the part of the S3 client the loader uses.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ChapterLoader is a ChapterLoader and Source that reads chapter files
// stored below a key prefix of an S3 bucket, laid out as the book splitter
// writes them ("part_1/01_Марсель.txt").
//
// This loader is useful when the chapter files live in S3 instead of the
// local filesystem.
type S3ChapterLoader struct {
	bucket string
	prefix string
	client API

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewS3ChapterLoader creates a loader using an existing S3 client. This is
// useful to reuse a preconfigured client (e.g., with custom middleware or
// credentials).
func NewS3ChapterLoader(client API, bucket, prefix string) *S3ChapterLoader {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3ChapterLoader{
		bucket: bucket,
		prefix: prefix,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// List returns every .txt object below the prefix. The chapter key is the
// object key relative to the prefix.
func (l *S3ChapterLoader) List(ctx context.Context) ([]loader.ChapterFile, error) {
	p := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(l.prefix),
	})

	var files []loader.ChapterFile
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list chapters with prefix %s: %w", l.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if path.Ext(key) != ".txt" {
				continue
			}
			chapter := strings.TrimPrefix(key, l.prefix)
			files = append(files, loader.ChapterFile{
				ID:       chapter,
				Chapter:  chapter,
				FilePath: key,
				Loader:   l,
			})
		}
	}
	loader.SortFiles(files)
	return files, nil
}

// GetFileText retrieves the contents of the given file from the configured
// bucket. It implements the ChapterLoader interface.
func (l *S3ChapterLoader) GetFileText(ctx context.Context, file loader.ChapterFile) ([]byte, error) {
	cacheKey := loader.CacheKey(file)

	l.cacheMu.RLock()
	if cached, ok := l.cache[cacheKey]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(cacheKey, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[cacheKey]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(file.FilePath),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get chapter from S3: %w", err)
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, fmt.Errorf("failed to read chapter contents: %w", err)
		}

		byts := buf.Bytes()

		l.cacheMu.Lock()
		l.cache[cacheKey] = byts
		l.cacheMu.Unlock()

		return byts, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
