package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/dgallion1/bibgest/internal/doctree"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLanguage is assumed for documents whose name carries no locale.
const DefaultLanguage = "en-US"

// excluded files live next to the bibliographies but are not bibliographies.
var excluded = map[string]bool{
	"README.md":          true,
	"CONTRIBUTING.md":    true,
	"CODE_OF_CONDUCT.md": true,
	"SUMMARY.md":         true,
}

// knownLanguages are the locales bibliographies are published in.
var knownLanguages = map[string]bool{
	"ar": true, "az": true, "bg": true, "bn": true, "ca": true, "cs": true,
	"da": true, "de": true, "el": true, "en": true, "en-US": true, "es": true,
	"et": true, "fa": true, "fa-IR": true, "fi": true, "fr": true, "he": true,
	"hi": true, "hu": true, "hy": true, "id": true, "it": true, "ja": true,
	"ko": true, "lv": true, "ml": true, "nl": true, "no": true, "pl": true,
	"pt": true, "pt-BR": true, "pt-PT": true, "ro": true, "ru": true, "si": true,
	"sk": true, "sl": true, "sr": true, "sv": true, "ta": true, "te": true,
	"th": true, "tr": true, "uk": true, "vi": true, "zh": true,
}

var localeShape = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// ListDocuments returns the markdown bibliographies in dir, sorted by name.
func ListDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".md" || excluded[name] {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	slices.Sort(files)
	return files, nil
}

// LanguageFromFilename derives the locale code from names such as
// "free-programming-books-pt_BR.md". Well-formed but unknown codes yield "";
// names without a locale suffix yield DefaultLanguage.
func LanguageFromFilename(filename string) string {
	base := filepath.Base(filename)
	dash := strings.LastIndex(base, "-")
	dot := strings.LastIndex(base, ".")
	if dot < 0 {
		dot = len(base)
	}
	if dash+1 > dot {
		return DefaultLanguage
	}
	code := strings.Replace(base[dash+1:dot], "_", "-", 1)
	if knownLanguages[code] {
		return code
	}
	if localeShape.MatchString(code) {
		return ""
	}
	return DefaultLanguage
}

// LanguageOf returns the code with its self-name, e.g. "de" / "Deutsch".
func LanguageOf(code string) doctree.Language {
	lang := doctree.Language{Code: code}
	if !knownLanguages[code] {
		return lang
	}
	tag, err := language.Parse(code)
	if err != nil {
		return lang
	}
	lang.Name = display.Self.Name(tag)
	return lang
}

// MediaType is the category of the documents in dir, e.g. "books".
func MediaType(dir string) string {
	return filepath.Base(filepath.Clean(dir))
}
