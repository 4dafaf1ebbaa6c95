package corpus

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

const book = `Александр Дюма
Граф Монте-Кристо

Часть первая
I. Марсель. Прибытие
24 февраля 1815 года дозорный Нотр-Дам-де-ла-Гард дал знать о приближении трехмачтового корабля «Фараон».

Корабль медленно входил в порт.
II. Отец и сын
Дантес поспешил к отцу.

ЧАСТЬ ВТОРАЯ
Вступление без главы.
XIV. Два узника
Фариа и Дантес встретились в подземелье.
XV. Пустая глава
Примечания
1. Нотр-Дам-де-ла-Гард – часовня.
`

func TestSplitBook(t *testing.T) {
	got := SplitBook(book)

	want := []Chapter{
		{
			Part: 1, Number: 1, Roman: "I", Title: "Марсель. Прибытие",
			Path: "part_1/01_Марсель. Прибытие.txt",
			Text: "24 февраля 1815 года дозорный Нотр-Дам-де-ла-Гард дал знать о приближении трехмачтового корабля «Фараон».\n\nКорабль медленно входил в порт.",
		},
		{
			Part: 1, Number: 2, Roman: "II", Title: "Отец и сын",
			Path: "part_1/02_Отец и сын.txt",
			Text: "Дантес поспешил к отцу.",
		},
		{
			Part: 2, Number: 14, Roman: "XIV", Title: "Два узника",
			Path: "part_2/14_Два узника.txt",
			Text: "Фариа и Дантес встретились в подземелье.",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitBook() = %#v, want %#v", got, want)
	}
}

func TestSplitBookSanitizesFileNames(t *testing.T) {
	got := SplitBook("Часть третья\nXL. Кто он? «Дантес»: моряк/узник\nтекст")
	if len(got) != 1 {
		t.Fatalf("got %d chapters, want 1", len(got))
	}
	if want := "part_3/40_Кто он «Дантес» морякузник.txt"; got[0].Path != want {
		t.Errorf("Path = %q, want %q", got[0].Path, want)
	}
}

func TestRomanToArabic(t *testing.T) {
	tests := map[string]int{
		"I": 1, "IV": 4, "IX": 9, "XIV": 14, "XL": 40, "XCIX": 99, "CXVII": 117, "xii": 12,
	}
	for in, want := range tests {
		if got := RomanToArabic(in); got != want {
			t.Errorf("RomanToArabic(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestDecodeText(t *testing.T) {
	const text = "Часть первая\nI. Марсель"
	cp1251, err := charmap.Windows1251.NewEncoder().String(text)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{"utf8", []byte(text)},
		{"utf8 with bom", append([]byte("\ufeff"), text...)},
		{"cp1251", []byte(cp1251)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeText(tc.input)
			if err != nil {
				t.Fatal(err)
			}
			if got != text {
				t.Errorf("DecodeText() = %q, want %q", got, text)
			}
		})
	}
}

func TestWriteChapters(t *testing.T) {
	dir := t.TempDir()
	chapters := SplitBook(book)
	if err := WriteChapters(dir, chapters); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "part_2", "14_Два узника.txt"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "Часть: 2\nГлава: XIV. Два узника\n") {
		t.Errorf("unexpected header:\n%s", content)
	}
	if !strings.HasSuffix(content, "Фариа и Дантес встретились в подземелье.") {
		t.Errorf("unexpected body:\n%s", content)
	}

	parts, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 {
		t.Errorf("got %d part directories, want 2", len(parts))
	}
}

func TestSplitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	cp1251, err := charmap.Windows1251.NewEncoder().String(book)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(cp1251), 0o644); err != nil {
		t.Fatal(err)
	}
	chapters, err := SplitFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 3 || chapters[2].Title != "Два узника" {
		t.Errorf("SplitFile() = %#v", chapters)
	}
}
