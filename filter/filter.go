// Package filter decides whether a test candidate should run for a given list
// of selection tokens.
//
// A token is either scoped, "scope:value" with scope one of key, tag, ticket or
// name, or bare. A bare token matches when it equals the candidate's name or
// key, or is one of its tags or tickets. Tokens are combined with OR and
// compared as exact, case-sensitive strings.
package filter

import (
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-reporter/metrics"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

// Token scopes
const (
	ScopeKey    = "key"
	ScopeTag    = "tag"
	ScopeTicket = "ticket"
	ScopeName   = "name"

	scopeSeparator = ":"
	listSeparator  = ","
)

// Attributes are the candidate values tokens are matched against.
type Attributes struct {
	Names   []string // method name and, when declared, the explicit display name
	Key     string
	Tags    []string
	Tickets []string
}

// AttributesOf extracts the filterable attributes of a candidate. Tags and
// tickets come from the method and group declarations only; configured global
// values are not part of selection.
func AttributesOf(c *types.Candidate) Attributes {
	attrs := Attributes{Names: []string{c.Method}}
	if d := c.Declaration; d != nil {
		attrs.Key = d.Key
		if d.Name != "" && d.Name != c.Method {
			attrs.Names = append(attrs.Names, d.Name)
		}
		attrs.Tags = append(attrs.Tags, d.Tags...)
		attrs.Tickets = append(attrs.Tickets, d.Tickets...)
	}
	if g := c.GroupDeclaration; g != nil {
		attrs.Tags = append(attrs.Tags, g.Tags...)
		attrs.Tickets = append(attrs.Tickets, g.Tickets...)
	}
	return attrs
}

// Filter holds the selection tokens of one run
type Filter struct {
	tokens []string
}

// New creates a filter for the given tokens. A nil or empty list selects
// every runnable candidate.
func New(tokens []string) *Filter {
	return &Filter{tokens: slices.Clone(tokens)}
}

// Tokens returns the tokens of the filter
func (f *Filter) Tokens() []string {
	return slices.Clone(f.tokens)
}

// IsRunnable reports whether the candidate should be executed. Candidates the
// host has already disabled are never runnable, whatever the tokens.
func (f *Filter) IsRunnable(c *types.Candidate) bool {
	runnable := c.Runnable && Match(AttributesOf(c), f.tokens)
	metrics.RecordFilterDecision(runnable)
	return runnable
}

// Match evaluates tokens against attrs with OR semantics.
func Match(attrs Attributes, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	for _, token := range tokens {
		if matchToken(attrs, token) {
			return true
		}
	}
	return false
}

func matchToken(attrs Attributes, token string) bool {
	scope, value, scoped := strings.Cut(token, scopeSeparator)
	if !scoped {
		return matchGeneric(attrs, token)
	}
	switch scope {
	case ScopeKey:
		return attrs.Key != "" && attrs.Key == value
	case ScopeTag:
		return slices.Contains(attrs.Tags, value)
	case ScopeTicket:
		return slices.Contains(attrs.Tickets, value)
	case ScopeName:
		return slices.Contains(attrs.Names, value)
	default:
		// unknown scope never matches
		return false
	}
}

func matchGeneric(attrs Attributes, value string) bool {
	if value == "" {
		return false
	}
	return slices.Contains(attrs.Names, value) ||
		attrs.Key == value ||
		slices.Contains(attrs.Tags, value) ||
		slices.Contains(attrs.Tickets, value)
}

// ParseTokens splits a comma separated token list, dropping blank entries.
func ParseTokens(raw string) []string {
	var tokens []string
	for _, token := range strings.Split(raw, listSeparator) {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
