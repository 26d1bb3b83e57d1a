// Package rules describes how a recipe source is scraped: which selectors or
// callbacks extract each recipe field, and which feed pages list recipe links.
//
// A source declares only what differs from the defaults. Resolve merges the
// declaration over DefaultParsingRules and DefaultLinkRules, validates it and
// returns an immutable RuleSet. Extraction code only ever sees resolved rules.
package rules

import (
	"github.com/PuerkitoBio/goquery"
)

// Kind tags the shape of a Rule.
type Kind int

const (
	// KindUnset is the zero value: the rule was not declared and the default applies.
	KindUnset Kind = iota
	// KindNone explicitly disables the field; extraction yields "absent".
	KindNone
	// KindLiteral returns a fixed value without looking at the document.
	KindLiteral
	// KindSelector evaluates one CSS selector.
	KindSelector
	// KindChain evaluates CSS selectors in order; the first one producing a value wins.
	KindChain
	// KindCallback hands the whole document to a function.
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindUnset:
		return "unset"
	case KindNone:
		return "none"
	case KindLiteral:
		return "literal"
	case KindSelector:
		return "selector"
	case KindChain:
		return "chain"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// CallbackFunc extracts a field value from a parsed document. The boolean
// reports whether a value was found; false means the field is absent.
type CallbackFunc[T any] func(doc *goquery.Document) (T, bool)

// Rule is a tagged variant describing how one field is extracted.
//
// Construct rules with None, Literal, Selector, Chain or Callback. The zero
// Rule is "unset" and is replaced by the default during resolution.
type Rule[T any] struct {
	kind      Kind
	literal   T
	selectors []string
	callback  CallbackFunc[T]
}

// None disables extraction of the field.
func None[T any]() Rule[T] { return Rule[T]{kind: KindNone} }

// Literal always yields v.
func Literal[T any](v T) Rule[T] { return Rule[T]{kind: KindLiteral, literal: v} }

// Selector evaluates a single CSS selector against the document.
func Selector[T any](selector string) Rule[T] {
	return Rule[T]{kind: KindSelector, selectors: []string{selector}}
}

// Chain evaluates selectors in order. For most fields the first selector that
// yields a value wins and later selectors are ignored; the text field instead
// concatenates every selector's matches.
func Chain[T any](selectors ...string) Rule[T] {
	return Rule[T]{kind: KindChain, selectors: append([]string(nil), selectors...)}
}

// Callback delegates extraction to fn.
func Callback[T any](fn CallbackFunc[T]) Rule[T] {
	if fn == nil {
		return None[T]()
	}
	return Rule[T]{kind: KindCallback, callback: fn}
}

// Kind reports the rule shape.
func (r Rule[T]) Kind() Kind { return r.kind }

// IsSet reports whether the rule was declared.
func (r Rule[T]) IsSet() bool { return r.kind != KindUnset }

// Value returns the literal value. Only meaningful for KindLiteral.
func (r Rule[T]) Value() T { return r.literal }

// Selectors returns a copy of the selector list for KindSelector and KindChain.
func (r Rule[T]) Selectors() []string {
	if len(r.selectors) == 0 {
		return nil
	}
	return append([]string(nil), r.selectors...)
}

// Func returns the callback. Only meaningful for KindCallback.
func (r Rule[T]) Func() CallbackFunc[T] { return r.callback }

// or returns r when it is declared, otherwise def.
func (r Rule[T]) or(def Rule[T]) Rule[T] {
	if r.IsSet() {
		return r.clone()
	}
	return def.clone()
}

func (r Rule[T]) clone() Rule[T] {
	out := r
	out.selectors = r.Selectors()
	return out
}
