// Package resolver computes the effective category, tags, tickets and display
// name of a declared test.
package resolver

import (
	"slices"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

const (
	// DefaultCategory is used when nothing else provides a category
	DefaultCategory = "Integration"
	// DefaultTag is present on every reported test
	DefaultTag = "itf"
)

// Category returns the first non-empty value among the method override, the
// group override, the configured category and the listener default, falling
// back to DefaultCategory.
func Category(method, group, configured, listener string) string {
	for _, c := range []string{method, group, configured, listener} {
		if c != "" {
			return c
		}
	}
	return DefaultCategory
}

// CategoryOf resolves the category of a declared candidate
func CategoryOf(decl *types.Declaration, group *types.GroupDeclaration, configured, listener string) string {
	var method, grp string
	if decl != nil {
		method = decl.Category
	}
	if group != nil {
		grp = group.Category
	}
	return Category(method, grp, configured, listener)
}

// Tags merges configured and declared tags and always adds DefaultTag. The
// result is sorted and free of duplicates.
func Tags(configured []string, decl *types.Declaration, group *types.GroupDeclaration) []string {
	var declared []string
	if decl != nil {
		declared = append(declared, decl.Tags...)
	}
	if group != nil {
		declared = append(declared, group.Tags...)
	}
	return union(configured, declared, []string{DefaultTag})
}

// Tickets merges configured and declared tickets. The result is sorted and
// free of duplicates; there is no default ticket.
func Tickets(configured []string, decl *types.Declaration, group *types.GroupDeclaration) []string {
	var declared []string
	if decl != nil {
		declared = append(declared, decl.Tickets...)
	}
	if group != nil {
		declared = append(declared, group.Tickets...)
	}
	return union(configured, declared)
}

func union(sets ...[]string) []string {
	out := []string{}
	for _, set := range sets {
		for _, v := range set {
			if v != "" {
				out = append(out, v)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
