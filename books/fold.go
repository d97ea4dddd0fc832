package books

import (
	"github.com/adrianmcphee/contentbase"
)

// Fold merges src into dst and reports whether dst changed.
//
// Tags and contents are unioned; copies of the same content merge their
// alternate sources. Scalar fields of dst are only filled when empty, so
// the document that was there first keeps its names.
func Fold(dst, src *Book) bool {
	changed := false

	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&dst.PrimaryName, src.PrimaryName)
	fill(&dst.EnglishName, src.EnglishName)
	fill(&dst.Category, src.Category)
	fill(&dst.Language, src.Language)

	for kind, values := range src.Tags {
		merged, added := unionTerms(dst.Tags[kind], values)
		if added {
			if dst.Tags == nil {
				dst.Tags = make(map[TagKind][]string)
			}
			dst.Tags[kind] = merged
			changed = true
		}
	}

	for _, content := range src.Contents {
		if foldContent(dst, content) {
			changed = true
		}
	}
	return changed
}

func foldContent(dst *Book, content BookContent) bool {
	for i := range dst.Contents {
		existing := &dst.Contents[i]
		if !existing.sameCopy(content) {
			continue
		}

		changed := false
		if existing.PageCount == 0 && content.PageCount != 0 {
			existing.PageCount = content.PageCount
			changed = true
		}
		if existing.Language == "" && content.Language != "" {
			existing.Language = content.Language
			changed = true
		}
		if merged, added := unionTerms(existing.Sources, content.Sources); added {
			existing.Sources = merged
			changed = true
		}
		return changed
	}

	dst.Contents = append(dst.Contents, content)
	return true
}

// unionTerms appends the values of add missing from have, comparing
// normalized forms. It keeps the order and spelling of have.
func unionTerms(have, add []string) ([]string, bool) {
	seen := make(map[string]bool, len(have))
	for _, v := range have {
		seen[contentbase.NormalizeTerm(v)] = true
	}

	out := have
	added := false
	for _, v := range add {
		n := contentbase.NormalizeTerm(v)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		if !added {
			out = append([]string(nil), have...)
			added = true
		}
		out = append(out, v)
	}
	return out, added
}

// sameBook is the identity rule: any shared name and any shared weak
// identity tag
func sameBook(a, b *Book) bool {
	return intersects(a.names(), b.names()) && intersects(a.identityTags(), b.identityTags())
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
