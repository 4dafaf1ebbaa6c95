// Package corpus splits a book into chapter files and keeps the per-chapter
// extraction results the graph build reads back.
package corpus

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/bookgraph/pkg/logger"

	"golang.org/x/text/encoding/charmap"
)

var (
	partPattern    = regexp.MustCompile(`(?i)^Часть\s+(первая|вторая|третья|четвертая|четвёртая|пятая|шестая)`)
	chapterPattern = regexp.MustCompile(`^([IVXLCDM]+)\.\s+(.+)$`)
	// notesPattern marks the back matter; everything after it is dropped.
	notesPattern = regexp.MustCompile(`(?i)^(Примечания|Notes)([\s.:]|$)`)

	unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*]`)
)

var partNumbers = map[string]int{
	"первая":    1,
	"вторая":    2,
	"третья":    3,
	"четвертая": 4,
	"четвёртая": 4,
	"пятая":     5,
	"шестая":    6,
}

// Chapter is one chapter of the book. Path is relative to the chapter
// directory and uses forward slashes.
type Chapter struct {
	Part   int    `json:"part"`
	Number int    `json:"number"`
	Roman  string `json:"roman"`
	Title  string `json:"title"`
	Path   string `json:"path"`
	Text   string `json:"text"`
}

// Heading is the chapter heading as it appears in the book.
func (c Chapter) Heading() string {
	return fmt.Sprintf("%s. %s", c.Roman, c.Title)
}

// RomanToArabic converts a roman numeral. Unknown characters count as 0.
func RomanToArabic(roman string) int {
	values := map[rune]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}
	runes := []rune(strings.ToUpper(roman))
	result, prev := 0, 0
	for i := len(runes) - 1; i >= 0; i-- {
		v := values[runes[i]]
		if v < prev {
			result -= v
		} else {
			result += v
		}
		prev = v
	}
	return result
}

// DecodeText returns data as a string, decoding it as Windows-1251 when it
// is not valid UTF-8.
func DecodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	}
	out, err := charmap.Windows1251.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode cp1251: %w", err)
	}
	return string(out), nil
}

// SplitBook splits text into chapters.
//
// A part heading ("Часть первая" .. "Часть шестая") closes the open chapter
// and sets the part of the following ones. A chapter heading is a roman
// numeral, a dot and a title on its own line. Lines before the first
// chapter heading of a part are dropped, and so is everything from the
// notes heading on. Chapters without any text are skipped.
func SplitBook(text string) []Chapter {
	var (
		chapters []Chapter
		part     int
		current  *Chapter
		lines    []string
	)

	flush := func() {
		if current == nil {
			return
		}
		body := strings.TrimSpace(strings.Join(lines, "\n"))
		if body != "" {
			current.Text = body
			current.Path = chapterPath(*current)
			chapters = append(chapters, *current)
		}
		current = nil
		lines = nil
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if m := partPattern.FindStringSubmatch(line); m != nil {
			flush()
			part = partNumbers[strings.ToLower(m[1])]
			continue
		}
		if m := chapterPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = &Chapter{
				Part:   part,
				Number: RomanToArabic(m[1]),
				Roman:  m[1],
				Title:  strings.TrimSpace(m[2]),
			}
			continue
		}
		if current == nil {
			continue
		}
		if notesPattern.MatchString(line) {
			break
		}
		lines = append(lines, line)
	}
	flush()

	return chapters
}

func chapterPath(c Chapter) string {
	name := unsafeFileChars.ReplaceAllString(fmt.Sprintf("%02d_%s.txt", c.Number, c.Title), "")
	return fmt.Sprintf("part_%d/%s", c.Part, name)
}

func (c Chapter) fileContent() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Часть: %d\n", c.Part)
	fmt.Fprintf(&b, "Глава: %s\n", c.Heading())
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")
	b.WriteString(c.Text)
	return b.String()
}

// WriteChapters writes every chapter below dir under its Path.
func WriteChapters(dir string, chapters []Chapter) error {
	for _, c := range chapters {
		path := filepath.Join(dir, filepath.FromSlash(c.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create part directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(c.fileContent()), 0o644); err != nil {
			return fmt.Errorf("write chapter %s: %w", c.Path, err)
		}
	}
	logger.Info("[Corpus] Chapters written", "dir", dir, "chapters", len(chapters))
	return nil
}

// SplitFile reads a book file and splits it. See SplitBook.
func SplitFile(path string) ([]Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}
	chapters := SplitBook(text)
	if len(chapters) == 0 {
		logger.Warn("[Corpus] No chapter headings found", "path", path)
	}
	return chapters, nil
}
