package graph

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/memo"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const maxContentBytes = 64 << 10

var contentExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true}

// ContentLoader finds local document text by fuzzy title match. Lookups are
// cached per title, including misses.
type ContentLoader struct {
	log   *logger.Logger
	dir   string
	cache *memo.Cache[string]

	once  sync.Once
	files []contentFile
	err   error
}

type contentFile struct {
	path     string
	norm     string
	stripped string
	tokens   map[string]bool
}

func NewContentLoader(log *logger.Logger, dir string, cache *memo.Cache[string]) *ContentLoader {
	if cache == nil {
		cache = memo.New[string]()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ContentLoader{log: log.With("service", "DocumentContent"), dir: dir, cache: cache}
}

// Lookup returns the content of the best-matching file, or "" when nothing matches.
func (l *ContentLoader) Lookup(ctx context.Context, title string) (string, error) {
	if l == nil || strings.TrimSpace(l.dir) == "" {
		return "", nil
	}
	key := Normalize(title)
	if key == "" {
		return "", nil
	}
	return l.cache.Get(ctx, key, func(ctx context.Context) (string, error) {
		if err := l.index(); err != nil {
			return "", err
		}
		f, ok := bestMatch(l.files, key)
		if !ok {
			return "", nil
		}
		raw, err := readCapped(f.path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.path, err)
		}
		return raw, nil
	})
}

func (l *ContentLoader) index() error {
	l.once.Do(func() {
		err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if !contentExtensions[ext] {
				return nil
			}
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			norm := Normalize(name)
			if norm == "" {
				return nil
			}
			l.files = append(l.files, contentFile{
				path:     path,
				norm:     norm,
				stripped: stripSpaces(norm),
				tokens:   tokenSet(norm),
			})
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			l.err = fmt.Errorf("index %s: %w", l.dir, err)
			return
		}
		l.log.Debug("Document index built", "dir", l.dir, "files", len(l.files))
	})
	return l.err
}

// bestMatch applies, in order: exact, whitespace-stripped, containment, then
// keyword overlap covering at least half of the title's keywords.
func bestMatch(files []contentFile, norm string) (contentFile, bool) {
	for _, f := range files {
		if f.norm == norm {
			return f, true
		}
	}
	stripped := stripSpaces(norm)
	for _, f := range files {
		if f.stripped == stripped {
			return f, true
		}
	}
	for _, f := range files {
		if strings.Contains(f.norm, norm) || strings.Contains(norm, f.norm) {
			return f, true
		}
	}
	want := tokenSet(norm)
	if len(want) == 0 {
		return contentFile{}, false
	}
	need := (len(want) + 1) / 2
	best, bestScore := -1, 0
	for i, f := range files {
		score := 0
		for tok := range want {
			if f.tokens[tok] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < need {
		return contentFile{}, false
	}
	return files[best], true
}

// Normalize lowercases, turns Korean and ASCII punctuation into spaces, and
// collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimSpace(b.String())
}

// Keywords are normalized tokens of at least two runes.
func Keywords(s string) []string {
	var out []string
	for _, tok := range strings.Fields(Normalize(s)) {
		if utf8.RuneCountInString(tok) >= 2 {
			out = append(out, tok)
		}
	}
	return out
}

func tokenSet(norm string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range Keywords(norm) {
		out[tok] = true
	}
	return out
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func readCapped(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	out, err := io.ReadAll(io.LimitReader(f, maxContentBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(decodeText(out, len(out) == maxContentBytes)), nil
}

// decodeText returns UTF-8 text. Files that are not UTF-8 are tried as
// EUC-KR/CP949; anything else keeps its valid runes. truncated drops a
// character cut at the read cap.
func decodeText(b []byte, truncated bool) string {
	u := b
	if truncated {
		u = trimPartialRune(b)
	}
	if utf8.Valid(u) {
		return string(u)
	}
	if mostlyUTF8(u) {
		return strings.ToValidUTF8(string(u), "")
	}
	if dec, err := korean.EUCKR.NewDecoder().Bytes(b); err == nil {
		text := string(dec)
		if truncated {
			text = strings.TrimSuffix(text, string(utf8.RuneError))
		}
		if !strings.ContainsRune(text, utf8.RuneError) {
			return text
		}
	}
	return strings.ToValidUTF8(string(u), "")
}

// mostlyUTF8 reports whether valid multi-byte runes outnumber invalid bytes,
// which marks a UTF-8 file with stray bytes rather than a legacy encoding.
func mostlyUTF8(b []byte) bool {
	var multi, invalid int
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		switch {
		case r == utf8.RuneError && size == 1:
			invalid++
		case size > 1:
			multi++
		}
		b = b[size:]
	}
	return multi > invalid
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if !utf8.FullRune(b[len(b)-i:]) {
			return b[:len(b)-i]
		}
		break
	}
	return b
}
