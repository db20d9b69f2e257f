package relator

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// CodeMarker terminates a relator code written inline, e.g. `trl.:`.
const CodeMarker = ".:"

//go:embed data.json
var defaultData []byte

// Term is one MARC relator term. Aliases lists the "used for" names; Use is
// only set on alias items produced by ListAll and names the canonical term.
type Term struct {
	Code    string   `json:"code" yaml:"code"`
	Name    string   `json:"name" yaml:"name"`
	Note    string   `json:"note" yaml:"note"`
	Aliases []string `json:"uf,omitempty" yaml:"uf,omitempty"`
	Use     string   `json:"use,omitempty" yaml:"-"`
}

// Registry is a read-only lookup table of relator terms keyed by code.
// It has no mutating methods and is safe for concurrent use.
type Registry struct {
	terms map[string]Term
}

// Load builds a registry from a JSON object keyed by code. A code that
// appears twice is an error.
func Load(r io.Reader) (*Registry, error) {
	dec := json.NewDecoder(r)
	if tok, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode relator terms: %w", err)
	} else if tok != json.Delim('{') {
		return nil, fmt.Errorf("decode relator terms: expected object, got %v", tok)
	}

	raw := make(map[string]Term)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode relator terms: %w", err)
		}
		key := tok.(string)
		if _, dup := raw[key]; dup {
			return nil, fmt.Errorf("relator term %q: duplicate code", key)
		}
		var t Term
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("decode relator term %q: %w", key, err)
		}
		raw[key] = t
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode relator terms: %w", err)
	}
	return build(raw)
}

// LoadYAML builds a registry from a YAML mapping keyed by code.
func LoadYAML(r io.Reader) (*Registry, error) {
	var raw map[string]Term
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode relator terms: %w", err)
	}
	return build(raw)
}

func build(raw map[string]Term) (*Registry, error) {
	terms := make(map[string]Term, len(raw))
	for key, t := range raw {
		if t.Code == "" {
			t.Code = key
		}
		if t.Code != key {
			return nil, fmt.Errorf("relator term %q: code mismatch %q", key, t.Code)
		}
		t.Use = ""
		t.Aliases = slices.Clone(t.Aliases)
		terms[key] = t
	}
	return &Registry{terms: terms}, nil
}

// LoadFile builds a registry from a JSON or YAML file on disk, chosen by
// extension.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open relator terms: %w", err)
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return Load(f)
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry built from the embedded MARC relator table.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Load(bytes.NewReader(defaultData))
		if err != nil {
			panic("relator: embedded table is invalid: " + err.Error())
		}
		defaultReg = reg
	})
	return defaultReg
}

// Len returns the number of canonical terms.
func (r *Registry) Len() int {
	return len(r.terms)
}

// Lookup returns the term with the given code.
func (r *Registry) Lookup(code string) (Term, bool) {
	t, ok := r.terms[code]
	if !ok {
		return Term{}, false
	}
	t.Aliases = slices.Clone(t.Aliases)
	return t, true
}

// FindByName matches name case-insensitively against canonical names and aliases.
func (r *Registry) FindByName(name string) (Term, bool) {
	for _, code := range r.sortedCodes() {
		t := r.terms[code]
		if strings.EqualFold(t.Name, name) {
			return r.Lookup(code)
		}
		for _, alias := range t.Aliases {
			if strings.EqualFold(alias, name) {
				return r.Lookup(code)
			}
		}
	}
	return Term{}, false
}

// ValidateCode checks an inline role annotation such as "trl.:". Values not
// ending in CodeMarker are reported as not found.
func (r *Registry) ValidateCode(raw string) (Term, bool) {
	if !strings.HasSuffix(raw, CodeMarker) {
		return Term{}, false
	}
	return r.Lookup(strings.TrimSuffix(raw, CodeMarker))
}

// ListAll returns every term plus one synthetic item per alias, sorted
// case-insensitively by name with empty names last.
func (r *Registry) ListAll() []Term {
	list := make([]Term, 0, len(r.terms))
	for _, code := range r.sortedCodes() {
		t := r.terms[code]
		canonical := t
		canonical.Aliases = slices.Clone(t.Aliases)
		list = append(list, canonical)
		for _, alias := range t.Aliases {
			list = append(list, Term{
				Code: t.Code,
				Name: alias,
				Note: t.Note,
				Use:  t.Name,
			})
		}
	}

	col := collate.New(language.Und, collate.IgnoreCase)
	slices.SortStableFunc(list, func(a, b Term) int {
		switch {
		case a.Name == b.Name:
			return 0
		case a.Name == "":
			return 1
		case b.Name == "":
			return -1
		}
		return col.CompareString(a.Name, b.Name)
	})
	return list
}

func (r *Registry) sortedCodes() []string {
	codes := make([]string, 0, len(r.terms))
	for code := range r.terms {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}
