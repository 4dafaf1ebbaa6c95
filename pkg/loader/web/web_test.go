package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func TestWebChapterLoader(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/plain":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte("Дантес поспешил к отцу."))
		case "/missing":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	l := NewWebChapterLoader(srv.Client(), []string{srv.URL + "/plain", srv.URL + "/missing"})
	files, err := l.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].Chapter != "web/001.txt" || files[1].Chapter != "web/002.txt" {
		t.Fatalf("List() = %#v", files)
	}

	for range 2 {
		text, err := files[0].GetText(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(text), "Дантес") {
			t.Errorf("GetText() = %q", text)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}

	if _, err := files[1].GetText(context.Background()); err == nil {
		t.Error("GetText() on 404 expected error")
	}
}

func TestWebChapterLoaderRejectsInvalidURL(t *testing.T) {
	l := NewWebChapterLoader(nil, []string{"not a url"})
	if _, err := l.List(context.Background()); err == nil {
		t.Error("List() expected error for invalid url")
	}
}

func TestWebChapterLoaderDecodesCharset(t *testing.T) {
	cp1251, err := charmap.Windows1251.NewEncoder().String("Мерседес ждала у окна.")
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=windows-1251")
		w.Write([]byte(cp1251))
	}))
	defer srv.Close()

	l := NewWebChapterLoader(srv.Client(), []string{srv.URL})
	files, err := l.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	text, err := files[0].GetText(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "Мерседес ждала у окна." {
		t.Errorf("GetText() = %q", text)
	}
}
