package curriculum

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/unicode/norm"
)

// ModuleID is the canonical identity of a curriculum module. All lookups go
// through the registry; free-form portal names are resolved to a ModuleID
// explicitly via Resolve.
type ModuleID string

type Module struct {
	ID            ModuleID
	CanonicalName string
	Aliases       []string
	Coefficient   float64
	// HasContinuous marks modules graded with both an exam and a
	// continuous-assessment (TD) mark.
	HasContinuous bool
	// AllowEmptyContinuous exempts the module from the missing-field
	// penalty when the TD column is legitimately absent on the portal.
	AllowEmptyContinuous bool
}

type Registry struct {
	modules []Module
	byID    map[ModuleID]*Module
}

func New(modules []Module) *Registry {
	r := &Registry{
		modules: make([]Module, len(modules)),
		byID:    make(map[ModuleID]*Module, len(modules)),
	}
	copy(r.modules, modules)
	for i := range r.modules {
		r.byID[r.modules[i].ID] = &r.modules[i]
	}
	return r
}

// Default returns the expected module table for the supported semester.
func Default() *Registry {
	return New([]Module{
		{ID: "analysis", CanonicalName: "Analyse", Aliases: []string{"analyse", "analyse mathematique", "analysis"}, Coefficient: 4, HasContinuous: true},
		{ID: "algebra", CanonicalName: "Algèbre", Aliases: []string{"algebre", "algebra"}, Coefficient: 3, HasContinuous: true},
		{ID: "algorithmics", CanonicalName: "Algorithmique", Aliases: []string{"algorithmique", "algo", "algorithmique et structures de donnees", "asd"}, Coefficient: 4, HasContinuous: true},
		{ID: "machine-structure", CanonicalName: "Structure Machine", Aliases: []string{"structure machine", "str machine", "machine structure"}, Coefficient: 3, HasContinuous: true},
		{ID: "probability", CanonicalName: "Probabilités et Statistiques", Aliases: []string{"probabilites", "proba", "statistiques", "probabilites et statistiques"}, Coefficient: 2, HasContinuous: true},
		{ID: "physics", CanonicalName: "Physique", Aliases: []string{"physique", "physics", "elect"}, Coefficient: 2, HasContinuous: true},
		{ID: "english", CanonicalName: "Anglais", Aliases: []string{"anglais", "english", "langue etrangere"}, Coefficient: 1, HasContinuous: false, AllowEmptyContinuous: true},
		{ID: "history-of-science", CanonicalName: "Histoire des Sciences", Aliases: []string{"histoire des sciences", "histoire", "hds"}, Coefficient: 1, HasContinuous: false, AllowEmptyContinuous: true},
	})
}

func (r *Registry) Get(id ModuleID) (*Module, bool) {
	m, ok := r.byID[id]
	return m, ok
}

func (r *Registry) All() []Module {
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

func (r *Registry) Len() int {
	return len(r.modules)
}

const matchThreshold = 0.85

// Resolve maps a free-form portal line to a module. A hit is either a
// normalized similarity >= 0.85 against the canonical name or an alias, or
// literal containment of an alias in the line.
func (r *Registry) Resolve(line string) (ModuleID, bool) {
	normalized := Normalize(line)
	if normalized == "" {
		return "", false
	}
	for i := range r.modules {
		m := &r.modules[i]
		candidates := make([]string, 0, len(m.Aliases)+1)
		candidates = append(candidates, Normalize(m.CanonicalName))
		for _, alias := range m.Aliases {
			candidates = append(candidates, Normalize(alias))
		}
		for _, candidate := range candidates {
			if candidate == "" {
				continue
			}
			if levenshtein.Similarity(normalized, candidate, nil) >= matchThreshold {
				return m.ID, true
			}
			if strings.Contains(normalized, candidate) {
				return m.ID, true
			}
		}
	}
	return "", false
}

// Normalize lowercases, strips diacritics and collapses whitespace so OCR
// variants of the same module name compare equal.
func Normalize(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(decomposed))
	lastSpace := false
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
