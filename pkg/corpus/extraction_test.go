package corpus

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func extraction(chapter string, names ...string) common.ChapterExtraction {
	e := common.ChapterExtraction{Chapter: chapter}
	for _, n := range names {
		e.Entities = append(e.Entities, common.Entity{Name: n, Type: "персонаж", Chapter: chapter})
	}
	return e
}

func TestExtractionKey(t *testing.T) {
	tests := map[string]string{
		"part_1/01_Марсель. Прибытие.txt": "part_1-01_Марсель. Прибытие.json",
		"part_2/14_Два узника.txt":         "part_2-14_Два узника.json",
		"loose":                            "loose.json",
	}
	for in, want := range tests {
		if got := ExtractionKey(in); got != want {
			t.Errorf("ExtractionKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func testStore(t *testing.T, s ExtractionStore) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "part_1/02_Отец и сын.txt")
	if err != nil || ok {
		t.Fatalf("Exists() on empty store = %v, %v", ok, err)
	}
	if _, err := s.Get(ctx, "part_1/02_Отец и сын.txt"); !errors.Is(err, ErrExtractionNotFound) {
		t.Fatalf("Get() on empty store error = %v, want ErrExtractionNotFound", err)
	}

	for _, e := range []common.ChapterExtraction{
		extraction("part_2/14_Два узника.txt", "фариа"),
		extraction("part_1/02_Отец и сын.txt", "дантес"),
		extraction("part_1/10_Малый кабинет.txt"),
	} {
		if err := s.Put(ctx, e); err != nil {
			t.Fatalf("Put(%s) error = %v", e.Chapter, err)
		}
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"part_1/02_Отец и сын.txt", "part_1/10_Малый кабинет.txt", "part_2/14_Два узника.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %#v, want %#v", got, want)
	}

	ok, err = s.Exists(ctx, "part_1/02_Отец и сын.txt")
	if err != nil || !ok {
		t.Errorf("Exists() = %v, %v, want true", ok, err)
	}

	all, err := LoadAll(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Entities[0].Name != "дантес" || all[2].Entities[0].Name != "фариа" {
		t.Errorf("LoadAll() = %#v", all)
	}
	if all[1].Entities == nil || all[1].Relationships == nil {
		t.Errorf("empty chapter decoded with nil slices: %#v", all[1])
	}
}

func TestDirStore(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
}

// fakeS3 is an in-memory bucket that pages listings two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := min(start+2, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	client := newFakeS3()
	// an unrelated object outside the prefix
	client.objects["books/monte-cristo.txt"] = []byte("text")

	testStore(t, NewS3Store(client, "bookgraph", "/extractions/"))

	if _, ok := client.objects["extractions/part_2-14_Два узника.json"]; !ok {
		t.Errorf("object keys = %v", client.objects)
	}
}
