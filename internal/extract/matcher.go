// Package extract turns fetched detail pages into product records using
// declarative attribute-matching rules.
package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PredicateKind selects how a Predicate compares an attribute value.
type PredicateKind string

// Supported predicate kinds. The zero kind matches every node.
const (
	KindAny           PredicateKind = ""
	KindExact         PredicateKind = "exact"
	KindContains      PredicateKind = "contains"
	KindPrefix        PredicateKind = "prefix"
	KindOneOfPrefixes PredicateKind = "one-of-prefixes"
	KindPresent       PredicateKind = "present"
)

// Predicate is a tagged test over one attribute of a node.
//
// KindExact compares class attributes token by token and any other attribute
// by string equality. KindOneOfPrefixes uses Values; every other kind uses
// Value. A node without the attribute never matches unless Kind is KindAny.
type Predicate struct {
	Kind   PredicateKind `mapstructure:"kind" yaml:"kind"`
	Attr   string        `mapstructure:"attr" yaml:"attr"`
	Value  string        `mapstructure:"value" yaml:"value"`
	Values []string      `mapstructure:"values" yaml:"values"`
}

// Exact matches attr equal to value (or containing the class token value).
func Exact(attr, value string) Predicate {
	return Predicate{Kind: KindExact, Attr: attr, Value: value}
}

// Contains matches attr containing value as a substring.
func Contains(attr, value string) Predicate {
	return Predicate{Kind: KindContains, Attr: attr, Value: value}
}

// Prefix matches attr starting with value.
func Prefix(attr, value string) Predicate {
	return Predicate{Kind: KindPrefix, Attr: attr, Value: value}
}

// OneOfPrefixes matches attr starting with any of prefixes.
func OneOfPrefixes(attr string, prefixes ...string) Predicate {
	return Predicate{Kind: KindOneOfPrefixes, Attr: attr, Values: append([]string(nil), prefixes...)}
}

// Present matches any node carrying attr.
func Present(attr string) Predicate {
	return Predicate{Kind: KindPresent, Attr: attr}
}

// Validate rejects predicates that can never be evaluated.
func (p Predicate) Validate() error {
	switch p.Kind {
	case KindAny:
		return nil
	case KindExact, KindContains, KindPrefix, KindPresent:
	case KindOneOfPrefixes:
		if len(p.Values) == 0 {
			return fmt.Errorf("predicate %s on %q needs at least one prefix", p.Kind, p.Attr)
		}
	default:
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}
	if p.Attr == "" {
		return fmt.Errorf("predicate %s needs an attribute", p.Kind)
	}
	return nil
}

// Matches evaluates p against node's attributes.
func Matches(node *html.Node, p Predicate) bool {
	if node == nil || node.Type != html.ElementNode {
		return false
	}
	if p.Kind == KindAny {
		return true
	}
	val, ok := attrValue(node, p.Attr)
	if !ok {
		return false
	}
	switch p.Kind {
	case KindExact:
		if p.Attr == "class" {
			for _, token := range strings.Fields(val) {
				if token == p.Value {
					return true
				}
			}
			return false
		}
		return val == p.Value
	case KindContains:
		return strings.Contains(val, p.Value)
	case KindPrefix:
		return strings.HasPrefix(val, p.Value)
	case KindOneOfPrefixes:
		for _, prefix := range p.Values {
			if prefix != "" && strings.HasPrefix(val, prefix) {
				return true
			}
		}
		return false
	case KindPresent:
		return true
	default:
		return false
	}
}

// Selector pairs a tag name with a predicate. An empty Tag matches any
// element.
type Selector struct {
	Tag   string    `mapstructure:"tag" yaml:"tag"`
	Where Predicate `mapstructure:"where" yaml:"where"`
}

// Matches reports whether node is an element with the selector's tag that
// satisfies its predicate.
func (s Selector) Matches(node *html.Node) bool {
	if node == nil || node.Type != html.ElementNode {
		return false
	}
	if s.Tag != "" && !strings.EqualFold(node.Data, s.Tag) {
		return false
	}
	return Matches(node, s.Where)
}

// Validate checks the predicate.
func (s Selector) Validate() error {
	if err := s.Where.Validate(); err != nil {
		return fmt.Errorf("selector %q: %w", s.Tag, err)
	}
	return nil
}

func attrValue(node *html.Node, name string) (string, bool) {
	for _, attr := range node.Attr {
		if attr.Namespace == "" && strings.EqualFold(attr.Key, name) {
			return attr.Val, true
		}
	}
	return "", false
}
