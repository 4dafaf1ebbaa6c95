package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrExtractionNotFound is returned by Get for a chapter without a stored
// extraction.
var ErrExtractionNotFound = errors.New("extraction not found")

// ExtractionStore keeps one extraction per chapter. Chapters are keyed by
// their chapter path; each chapter is written to its own object, so
// concurrent Puts for different chapters never touch the same file.
type ExtractionStore interface {
	// List returns the chapter keys of every stored extraction, sorted.
	List(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, chapter string) (bool, error)
	Get(ctx context.Context, chapter string) (common.ChapterExtraction, error)
	Put(ctx context.Context, extraction common.ChapterExtraction) error
}

// ExtractionKey is the file name of a chapter's extraction:
// "part_1/01_Марсель.txt" becomes "part_1-01_Марсель.json".
func ExtractionKey(chapter string) string {
	chapter = strings.TrimSuffix(filepath.ToSlash(chapter), path.Ext(chapter))
	return strings.ReplaceAll(chapter, "/", "-") + ".json"
}

func encodeExtraction(e common.ChapterExtraction) ([]byte, error) {
	if e.Entities == nil {
		e.Entities = []common.Entity{}
	}
	if e.Relationships == nil {
		e.Relationships = []common.Relationship{}
	}
	return json.MarshalIndent(e, "", "    ")
}

func decodeExtraction(key string, data []byte) (common.ChapterExtraction, error) {
	var e common.ChapterExtraction
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("decode extraction %s: %w", key, err)
	}
	return e, nil
}

// LoadAll reads every stored extraction in chapter order.
func LoadAll(ctx context.Context, s ExtractionStore) ([]common.ChapterExtraction, error) {
	chapters, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]common.ChapterExtraction, 0, len(chapters))
	for _, c := range chapters {
		e, err := s.Get(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// DirStore stores extractions as JSON files in a local directory.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// List reads the chapter key stored inside each file, so the result is
// sorted by chapter path rather than by file name.
func (s *DirStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	chapters := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		ext, err := s.read(e.Name())
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, ext.Chapter)
	}
	sort.Strings(chapters)
	return chapters, nil
}

func (s *DirStore) Exists(_ context.Context, chapter string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, ExtractionKey(chapter)))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *DirStore) read(name string) (common.ChapterExtraction, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return common.ChapterExtraction{}, fmt.Errorf("%w: %s", ErrExtractionNotFound, name)
	}
	if err != nil {
		return common.ChapterExtraction{}, err
	}
	return decodeExtraction(name, data)
}

func (s *DirStore) Get(_ context.Context, chapter string) (common.ChapterExtraction, error) {
	return s.read(ExtractionKey(chapter))
}

// Put writes through a temporary file so a crash never leaves a partial
// extraction that a resumed run would skip.
func (s *DirStore) Put(_ context.Context, e common.ChapterExtraction) error {
	data, err := encodeExtraction(e)
	if err != nil {
		return err
	}
	final := filepath.Join(s.dir, ExtractionKey(e.Chapter))
	tmp, err := os.CreateTemp(s.dir, ".extraction-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), final)
}

// S3API is the part of the S3 client the extraction store uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store stores extractions as JSON objects below a key prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(chapter string) string {
	return s.prefix + ExtractionKey(chapter)
}

func (s *S3Store) List(ctx context.Context) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	var chapters []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list extractions: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if path.Ext(key) != ".json" {
				continue
			}
			e, err := s.getKey(ctx, key)
			if err != nil {
				return nil, err
			}
			chapters = append(chapters, e.Chapter)
		}
	}
	sort.Strings(chapters)
	return chapters, nil
}

func (s *S3Store) Exists(ctx context.Context, chapter string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(chapter)),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return false, nil
	}
	return false, fmt.Errorf("head extraction: %w", err)
}

func (s *S3Store) getKey(ctx context.Context, key string) (common.ChapterExtraction, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return common.ChapterExtraction{}, fmt.Errorf("%w: %s", ErrExtractionNotFound, key)
		}
		return common.ChapterExtraction{}, fmt.Errorf("get extraction: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return common.ChapterExtraction{}, fmt.Errorf("read extraction: %w", err)
	}
	return decodeExtraction(key, data)
}

func (s *S3Store) Get(ctx context.Context, chapter string) (common.ChapterExtraction, error) {
	return s.getKey(ctx, s.key(chapter))
}

func (s *S3Store) Put(ctx context.Context, e common.ChapterExtraction) error {
	data, err := encodeExtraction(e)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(e.Chapter)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put extraction: %w", err)
	}
	return nil
}
