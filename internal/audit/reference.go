package audit

import (
	"regexp"
	"strings"

	"github.com/NicholasJacob1990/iudex0-sub003/internal/helpers"
)

// Canonical legal reference tokens are extracted with a fixed pattern table.
// Tokens are lower-cased, accent-folded and whitespace-collapsed so that the
// same citation written with minor spelling variations still compares equal.
var (
	reArticle       = regexp.MustCompile(`(?i)\bart(?:igo)?s?\.?\s*n?[ºo°]?\.?\s*(\d{1,4}(?:-[A-Za-z])?)`)
	reParagraph     = regexp.MustCompile(`§+\s*(\d{1,3})`)
	reParagrafoUnic = regexp.MustCompile(`(?i)\bpar[áa]grafo\s+[úu]nico\b`)
	reStatute       = regexp.MustCompile(`(?i)\b(lei\s+complementar|decreto-lei|decreto|medida\s+provis[óo]ria|emenda\s+constitucional|lei)\s+(?:n[ºo°]?\.?\s*)?(\d{1,5}(?:\.\d{3})*(?:/\d{2,4})?)`)
	reSumula        = regexp.MustCompile(`(?i)\bs[úu]mula\s+(vinculante\s+)?(?:n[ºo°]?\.?\s*)?(\d{1,4})`)
	reTema          = regexp.MustCompile(`(?i)\btema\s+(?:n[ºo°]?\.?\s*)?(\d{1,4}(?:\.\d{1,3})?)`)
	// CNJ unified numbering: NNNNNNN-DD.AAAA.J.TR.OOOO
	reCaseCNJ = regexp.MustCompile(`\b\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}\b`)
	// Court filing shorthand (RE 123456, REsp 1.234.567, HC 98765, ...).
	reCasePrefix = regexp.MustCompile(`(?i)\b(resp|aresp|re|adi|adc|adpf|hc|rhc|ms|mi|rcl|inq|pet|ai)\s+(?:n[ºo°]?\.?\s*)?(\d{1,3}(?:\.\d{3})+|\d{3,7})\b`)

	accentFolder = strings.NewReplacer(
		"á", "a", "à", "a", "â", "a", "ã", "a",
		"é", "e", "ê", "e",
		"í", "i",
		"ó", "o", "ô", "o", "õ", "o",
		"ú", "u", "ü", "u",
		"ç", "c",
	)
)

// ReferenceSet is a set of canonical legal reference tokens.
type ReferenceSet map[string]struct{}

// Contains reports whether the canonical form of tok is in the set.
func (rs ReferenceSet) Contains(tok string) bool {
	_, ok := rs[canonicalRef(tok)]
	return ok
}

func (rs ReferenceSet) add(tok string) {
	tok = canonicalRef(tok)
	if tok != "" {
		rs[tok] = struct{}{}
	}
}

func canonicalRef(tok string) string {
	return accentFolder.Replace(helpers.FoldText(tok))
}

// ExtractReferences collects every canonical legal reference token found in
// text: statute articles, paragraphs, named statutes, súmulas, repercussion
// themes and case numbers. It never fails; degenerate input yields an empty
// set.
func ExtractReferences(text string) ReferenceSet {
	refs := make(ReferenceSet)
	if strings.TrimSpace(text) == "" {
		return refs
	}
	for _, m := range reArticle.FindAllStringSubmatch(text, -1) {
		refs.add("art. " + m[1])
	}
	for _, m := range reParagraph.FindAllStringSubmatch(text, -1) {
		refs.add("§ " + m[1])
	}
	if reParagrafoUnic.MatchString(text) {
		refs.add("paragrafo unico")
	}
	for _, m := range reStatute.FindAllStringSubmatch(text, -1) {
		refs.add(m[1] + " " + m[2])
	}
	for _, m := range reSumula.FindAllStringSubmatch(text, -1) {
		if strings.TrimSpace(m[1]) != "" {
			refs.add("sumula vinculante " + m[2])
		} else {
			refs.add("sumula " + m[2])
		}
	}
	for _, m := range reTema.FindAllStringSubmatch(text, -1) {
		refs.add("tema " + m[1])
	}
	for _, m := range reCaseCNJ.FindAllString(text, -1) {
		refs.add(m)
	}
	for _, m := range reCasePrefix.FindAllStringSubmatch(text, -1) {
		refs.add(m[1] + " " + m[2])
	}
	return refs
}

// intersectCount counts tokens present in both sets.
func intersectCount(a, b ReferenceSet) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}
