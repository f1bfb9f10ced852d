// Package normalize rewrites queries written in a foreign script into the
// canonical Spanish tax vocabulary the indices are built on.
package normalize

import (
	"sort"
	"strings"
	"unicode"
)

// term is one rewrite rule: a foreign phrase and its canonical replacement.
type term struct {
	from string // lowercase, as matched
	to   string
}

// builtinTerms is the curated Russian -> Spanish tax vocabulary. Longer phrases
// must win over their substrings, so the table is re-sorted at construction;
// within equal lengths the order below is kept.
var builtinTerms = []term{
	{"налог на добавленную стоимость", "IVA"},
	{"подоходный налог", "IRPF"},
	{"налоговая декларация", "declaración de la renta"},
	{"налоговая инспекция", "Agencia Tributaria"},
	{"квартальный отчет", "declaración trimestral"},
	{"срок подачи", "plazo de presentación"},
	{"счет-фактура", "factura"},
	{"самозанятый", "autónomo"},
	{"налоговая", "Agencia Tributaria"},
	{"декларация", "declaración"},
	{"ндс", "IVA"},
	{"ндфл", "IRPF"},
	{"вычет", "deducción"},
	{"штраф", "sanción"},
	{"налог", "impuesto"},
}

// Normalizer translates known foreign tax terms to their Spanish equivalents.
// Queries without Cyrillic text pass through untouched.
type Normalizer struct {
	terms []term
}

// New builds a normalizer from the built-in table extended with extra rules
// from config. Extra rules never shadow built-in phrases of greater length.
func New(extra map[string]string) *Normalizer {
	terms := make([]term, 0, len(builtinTerms)+len(extra))
	terms = append(terms, builtinTerms...)

	// Deterministic order for config-supplied rules.
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		terms = append(terms, term{from: strings.ToLower(k), to: extra[k]})
	}

	// Longest phrase first so "подоходный налог" beats "налог".
	sort.SliceStable(terms, func(i, j int) bool {
		return len([]rune(terms[i].from)) > len([]rune(terms[j].from))
	})

	return &Normalizer{terms: terms}
}

// Normalize rewrites known foreign terms in the query. It returns the rewritten
// query and whether any rewrite happened. It never fails: a query with no
// recognized terms comes back unchanged.
func (n *Normalizer) Normalize(query string) (string, bool) {
	if !hasCyrillic(query) {
		return query, false
	}

	out := query
	translated := false
	for _, t := range n.terms {
		var replaced bool
		out, replaced = replaceFold(out, t.from, t.to)
		translated = translated || replaced
	}
	return out, translated
}

// replaceFold replaces every case-insensitive occurrence of from in s,
// preserving the surrounding text. Lowering happens per rune so positions in
// lower always line up with runes; strings.ToLower can change rune counts
// (e.g. İ) and would corrupt the surrounding text.
func replaceFold(s, from, to string) (string, bool) {
	runes := []rune(s)
	lower := lowerRunes(runes)
	pattern := lowerRunes([]rune(from))
	if len(pattern) == 0 || len(pattern) > len(lower) {
		return s, false
	}

	var b strings.Builder
	replaced := false
	i := 0
	for i < len(runes) {
		if matchAt(lower, pattern, i) {
			b.WriteString(to)
			i += len(pattern)
			replaced = true
			continue
		}
		b.WriteRune(runes[i])
		i++
	}
	if !replaced {
		return s, false
	}
	return b.String(), true
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func matchAt(s, pattern []rune, at int) bool {
	if at+len(pattern) > len(s) {
		return false
	}
	for i, r := range pattern {
		if s[at+i] != r {
			return false
		}
	}
	return true
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}
