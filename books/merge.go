package books

import (
	"sort"

	"github.com/adrianmcphee/contentbase"
)

// DryMerge folds duplicates within one batch of candidates, without
// touching the store.
//
// Candidates are indexed by name and by weak identity tag. A candidate that
// shares a name and a tag with one seen earlier in the batch is folded into
// the earliest such match; otherwise it is kept. The result preserves input
// order of the kept candidates. Inputs are not modified; a candidate that
// cannot be copied fails the whole batch.
func DryMerge(candidates []*Book) ([]*Book, error) {
	var unique []*Book
	byName := make(map[string][]int)
	byTag := make(map[string][]int)

	index := func(i int) {
		b := unique[i]
		for _, n := range b.names() {
			byName[n] = appendIndex(byName[n], i)
		}
		for _, tag := range b.identityTags() {
			byTag[tag] = appendIndex(byTag[tag], i)
		}
	}

	for _, c := range candidates {
		if c == nil {
			continue
		}

		if match, ok := firstMatch(c, byName, byTag); ok {
			Fold(unique[match], c)
			// Folding may add names or tags that later candidates match on
			index(match)
			continue
		}

		copied, err := contentbase.DeepCopy(c)
		if err != nil {
			return nil, err
		}
		unique = append(unique, copied)
		index(len(unique) - 1)
	}
	return unique, nil
}

// firstMatch returns the lowest index sharing both a name and a tag with c
func firstMatch(c *Book, byName, byTag map[string][]int) (int, bool) {
	names := make(map[int]bool)
	for _, n := range c.names() {
		for _, i := range byName[n] {
			names[i] = true
		}
	}
	if len(names) == 0 {
		return 0, false
	}

	var both []int
	for _, tag := range c.identityTags() {
		for _, i := range byTag[tag] {
			if names[i] {
				both = append(both, i)
			}
		}
	}
	if len(both) == 0 {
		return 0, false
	}
	sort.Ints(both)
	return both[0], true
}

func appendIndex(s []int, i int) []int {
	for _, v := range s {
		if v == i {
			return s
		}
	}
	return append(s, i)
}
