package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Policy picks one value among a rule's candidates.
type Policy string

// Selection policies.
const (
	PolicyFirst Policy = "first"
	PolicyLast  Policy = "last"
	PolicyJoin  Policy = "join"
)

// FieldRule binds a field name to a node selector, a selection policy, and a
// default used when nothing matches.
type FieldRule struct {
	Name string
	// Scope restricts matching to descendants of nodes it selects.
	Scope  *Selector
	Target Selector
	// Attr reads an attribute instead of the node text.
	Attr      string
	Policy    Policy
	Separator string
	// SkipEmpty drops blank candidates before the policy applies.
	SkipEmpty bool
	Default   string
}

// Validate checks the rule's selectors and policy.
func (r FieldRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("field rule needs a name")
	}
	switch r.Policy {
	case PolicyFirst, PolicyLast, PolicyJoin:
	default:
		return fmt.Errorf("field %s: unknown policy %q", r.Name, r.Policy)
	}
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("field %s target: %w", r.Name, err)
	}
	if r.Scope != nil {
		if err := r.Scope.Validate(); err != nil {
			return fmt.Errorf("field %s scope: %w", r.Name, err)
		}
	}
	return nil
}

// Collect returns every candidate value in document order.
func (r FieldRule) Collect(root *goquery.Selection) []string {
	values := []string{}
	if root == nil {
		return values
	}
	r.targets(root).Each(func(_ int, s *goquery.Selection) {
		val, ok := r.value(s)
		if !ok {
			return
		}
		if r.SkipEmpty && val == "" {
			return
		}
		values = append(values, val)
	})
	return values
}

// Resolve applies the policy to Collect's output, falling back to Default.
func (r FieldRule) Resolve(root *goquery.Selection) string {
	values := r.Collect(root)
	if len(values) == 0 {
		return r.Default
	}
	switch r.Policy {
	case PolicyLast:
		return values[len(values)-1]
	case PolicyJoin:
		sep := r.Separator
		if sep == "" {
			sep = " "
		}
		return strings.Join(values, sep)
	default:
		return values[0]
	}
}

func (r FieldRule) targets(root *goquery.Selection) *goquery.Selection {
	if r.Scope == nil {
		return filter(root.Find("*"), r.Target)
	}
	scopes := outermost(filter(root.Find("*"), *r.Scope))
	return filter(scopes.Find("*"), r.Target)
}

func (r FieldRule) value(s *goquery.Selection) (string, bool) {
	if r.Attr != "" {
		val, ok := s.Attr(r.Attr)
		return strings.TrimSpace(val), ok
	}
	return strings.TrimSpace(s.Text()), true
}

func filter(sel *goquery.Selection, selector Selector) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return selector.Matches(s.Get(0))
	})
}

// outermost drops matches nested inside another match so scoped targets are
// not collected twice.
func outermost(sel *goquery.Selection) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Parents().FilterNodes(sel.Nodes...).Length() == 0
	})
}
