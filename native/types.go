// Package native defines the contract between the multiplexer and a
// platform observer capability. A capability watches many targets but
// reports every change through a single delivery callback, and it can
// only be reset globally.
package native

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by an Opener when the capability is not
// present in the current runtime.
var ErrUnavailable = errors.New("native observer not available")

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("invalid observe options")

// Kind identifies what changed in a Record.
type Kind string

// Standard record kinds.
const (
	// KindChildList is a structural change: a child was added, removed or renamed.
	KindChildList Kind = "childList"

	// KindAttributes is an attribute change (permissions, mode bits, ...).
	KindAttributes Kind = "attributes"

	// KindCharacterData is a content change.
	KindCharacterData Kind = "characterData"
)

// Options describes which kinds of change to report for a target.
type Options struct {
	// ChildList reports structural changes.
	ChildList bool

	// Subtree extends observation to all descendants of the target.
	Subtree bool

	// Attributes reports attribute changes.
	Attributes bool

	// CharacterData reports content changes.
	CharacterData bool

	// AttributeFilter restricts attribute reports to the named attributes.
	// Empty means all attributes. A non-empty filter implies Attributes.
	AttributeFilter []string
}

// Validate checks that at least one recognized flag is set.
// CharacterData alone is not enough; it qualifies a target, it does not
// select one.
func (o Options) Validate() error {
	if !o.ChildList && !o.Subtree && !o.Attributes {
		return fmt.Errorf("%w: one of ChildList, Subtree or Attributes must be set", ErrInvalidOptions)
	}
	return nil
}

// Normalize returns o with Attributes set when an AttributeFilter is given.
func (o Options) Normalize() Options {
	if len(o.AttributeFilter) > 0 {
		o.Attributes = true
	}
	return o
}

// Wants reports whether records of kind k should be delivered under o.
func (o Options) Wants(k Kind) bool {
	switch k {
	case KindChildList:
		return o.ChildList
	case KindAttributes:
		return o.Attributes
	case KindCharacterData:
		return o.CharacterData
	default:
		return false
	}
}

// WantsAttribute reports whether an attribute change on name passes the filter.
func (o Options) WantsAttribute(name string) bool {
	if !o.Attributes {
		return false
	}
	if len(o.AttributeFilter) == 0 {
		return true
	}
	for _, f := range o.AttributeFilter {
		if f == name {
			return true
		}
	}
	return false
}

// Record is one reported change, tagged with the target it belongs to.
type Record[T comparable] struct {
	// Target is the observed target the change is reported for.
	Target T

	// Kind is what changed.
	Kind Kind

	// Name identifies the affected node, e.g. the child that was added.
	Name string

	// Attribute is the changed attribute for KindAttributes records.
	Attribute string

	// Op is the capability's own description of the change.
	Op string
}
