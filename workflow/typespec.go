// Package workflow provides a graph-structured, superstep-synchronous
// message-passing runtime for agent orchestration.
package workflow

import (
	"reflect"
	"strings"
)

// TypeKind discriminates the variants of a TypeSpec.
type TypeKind int

const (
	// KindAny accepts every value.
	KindAny TypeKind = iota

	// KindExact accepts a single concrete type (or, when the type is an
	// interface, any value implementing it).
	KindExact

	// KindUnion accepts a value matched by any of its member specs.
	KindUnion

	// KindList accepts slices and arrays whose elements all match the
	// element spec. This is the generic-origin match: ListOf(TypeOf[string]())
	// accepts []any{"a", "b"} as well as []string{"a", "b"}.
	KindList
)

// TypeSpec is a tagged type declaration used for handler dispatch and for
// static type-compatibility checks at build time.
//
// A TypeSpec is one of:
//   - AnyType(): matches everything
//   - TypeOf[T](): an exact type, with interface satisfaction for interfaces
//   - UnionOf(a, b, ...): membership in a set of specs
//   - ListOf(elem): a slice/array whose elements match elem
//
// Reflection-by-type-name is deliberately not used; dispatch is case analysis
// over the tagged variants.
type TypeSpec struct {
	kind    TypeKind
	exact   reflect.Type
	members []TypeSpec
	elem    *TypeSpec
}

// AnyType returns a TypeSpec that accepts every value.
func AnyType() TypeSpec {
	return TypeSpec{kind: KindAny}
}

// TypeOf returns an exact TypeSpec for T.
//
// If T is an interface type, the spec accepts any value implementing it.
func TypeOf[T any]() TypeSpec {
	return TypeSpec{kind: KindExact, exact: reflect.TypeOf((*T)(nil)).Elem()}
}

// TypeOfValue returns an exact TypeSpec for the dynamic type of v.
func TypeOfValue(v any) TypeSpec {
	return TypeSpec{kind: KindExact, exact: reflect.TypeOf(v)}
}

// UnionOf returns a TypeSpec that accepts values matched by any member.
func UnionOf(members ...TypeSpec) TypeSpec {
	return TypeSpec{kind: KindUnion, members: members}
}

// ListOf returns a TypeSpec that accepts slices or arrays whose elements all
// match elem.
func ListOf(elem TypeSpec) TypeSpec {
	return TypeSpec{kind: KindList, elem: &elem}
}

// Kind returns the variant tag of the spec.
func (s TypeSpec) Kind() TypeKind { return s.kind }

// Match scores, higher is more specific. Exact equality beats interface
// satisfaction, which beats union membership, which beats generic-origin
// list matching. Any matches everything at the lowest score.
const (
	scoreNone   = 0
	scoreAny    = 1
	scoreList   = 2
	scoreUnion  = 3
	scoreAssign = 4
	scoreExact  = 5
)

// Accepts reports whether the runtime value v matches the spec.
func (s TypeSpec) Accepts(v any) bool {
	return s.score(v) > scoreNone
}

// score is the dispatch specificity of v against the spec, scoreNone when v
// does not match.
func (s TypeSpec) score(v any) int {
	switch s.kind {
	case KindAny:
		return scoreAny

	case KindExact:
		t := reflect.TypeOf(v)
		if t == nil {
			// Untyped nil only matches interface specs.
			if s.exact != nil && s.exact.Kind() == reflect.Interface {
				return scoreAssign
			}
			return scoreNone
		}
		if t == s.exact {
			return scoreExact
		}
		if s.exact.Kind() == reflect.Interface && t.Implements(s.exact) {
			return scoreAssign
		}
		return scoreNone

	case KindUnion:
		for _, m := range s.members {
			if m.Accepts(v) {
				return scoreUnion
			}
		}
		return scoreNone

	case KindList:
		rv := reflect.ValueOf(v)
		if !rv.IsValid() {
			return scoreNone
		}
		if k := rv.Kind(); k != reflect.Slice && k != reflect.Array {
			return scoreNone
		}
		for i := 0; i < rv.Len(); i++ {
			if !s.elem.Accepts(rv.Index(i).Interface()) {
				return scoreNone
			}
		}
		return scoreList
	}
	return scoreNone
}

// AcceptsType reports whether a value of static type t could match the spec.
// This is the build-time approximation used by the validator; the runtime
// Accepts check remains the authoritative guard for polymorphic payloads.
func (s TypeSpec) AcceptsType(t reflect.Type) bool {
	switch s.kind {
	case KindAny:
		return true
	case KindExact:
		if t == nil {
			return false
		}
		if t == s.exact {
			return true
		}
		return s.exact.Kind() == reflect.Interface && t.Implements(s.exact)
	case KindUnion:
		for _, m := range s.members {
			if m.AcceptsType(t) {
				return true
			}
		}
		return false
	case KindList:
		if t == nil {
			return false
		}
		if k := t.Kind(); k != reflect.Slice && k != reflect.Array {
			return false
		}
		return s.elem.AcceptsType(t.Elem()) || t.Elem().Kind() == reflect.Interface
	}
	return false
}

// compatibleWith reports whether a value declared as s could be accepted by
// the input spec in. Used for static edge type-compatibility checks; Any on
// either side passes because the static analysis cannot narrow it.
func (s TypeSpec) compatibleWith(in TypeSpec) bool {
	switch s.kind {
	case KindAny:
		return true
	case KindExact:
		return in.Kind() == KindAny || in.AcceptsType(s.exact) || acceptsListOf(in, s)
	case KindUnion:
		for _, m := range s.members {
			if m.compatibleWith(in) {
				return true
			}
		}
		return false
	case KindList:
		if in.Kind() == KindAny {
			return true
		}
		if in.Kind() == KindList {
			return s.elem.compatibleWith(*in.elem)
		}
		if in.Kind() == KindUnion {
			for _, m := range in.members {
				if s.compatibleWith(m) {
					return true
				}
			}
		}
		return false
	}
	return false
}

// acceptsListOf reports whether in is a list spec whose element spec could
// accept values declared as out. Needed for fan-in compatibility, where the
// target receives list[T_out] rather than T_out.
func acceptsListOf(in, out TypeSpec) bool {
	if in.Kind() != KindList {
		return false
	}
	return out.compatibleWith(*in.elem)
}

// equal reports structural equality of two specs. Used by the validator to
// detect ambiguous handler registrations.
func (s TypeSpec) equal(o TypeSpec) bool {
	if s.kind != o.kind {
		return false
	}
	switch s.kind {
	case KindAny:
		return true
	case KindExact:
		return s.exact == o.exact
	case KindUnion:
		if len(s.members) != len(o.members) {
			return false
		}
		for i := range s.members {
			if !s.members[i].equal(o.members[i]) {
				return false
			}
		}
		return true
	case KindList:
		return s.elem.equal(*o.elem)
	}
	return false
}

// String renders the spec for diagnostics and validation messages.
func (s TypeSpec) String() string {
	switch s.kind {
	case KindAny:
		return "any"
	case KindExact:
		if s.exact == nil {
			return "<nil>"
		}
		return s.exact.String()
	case KindUnion:
		parts := make([]string, len(s.members))
		for i, m := range s.members {
			parts[i] = m.String()
		}
		return "union[" + strings.Join(parts, " | ") + "]"
	case KindList:
		return "list[" + s.elem.String() + "]"
	}
	return "unknown"
}

// outputKind discriminates the variants of an OutputSpec.
type outputKind int

const (
	outputInvalid outputKind = iota
	outputNone
	outputTypes
	outputAny
)

// OutputSpec declares a handler's output envelope: no outputs, a fixed set
// of types (a single type or a union), or any.
//
// Every registered handler must carry an OutputSpec built by one of the
// constructors; the zero value is rejected by the validator.
type OutputSpec struct {
	kind  outputKind
	types []TypeSpec
}

// NoOutput declares that a handler sends no messages.
func NoOutput() OutputSpec {
	return OutputSpec{kind: outputNone}
}

// OutputTypes declares the set of types a handler may send.
func OutputTypes(types ...TypeSpec) OutputSpec {
	return OutputSpec{kind: outputTypes, types: types}
}

// AnyOutput declares that a handler may send values of any type.
func AnyOutput() OutputSpec {
	return OutputSpec{kind: outputAny}
}

// declared reports whether the spec was built by a constructor.
func (o OutputSpec) declared() bool { return o.kind != outputInvalid }

// Allows reports whether the handler may send v under this envelope.
func (o OutputSpec) Allows(v any) bool {
	switch o.kind {
	case outputAny:
		return true
	case outputTypes:
		for _, t := range o.types {
			if t.Accepts(v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// declaredTypes returns the declared output specs for static compatibility
// checks. Nil for none/any envelopes.
func (o OutputSpec) declaredTypes() []TypeSpec {
	if o.kind != outputTypes {
		return nil
	}
	return o.types
}

// String renders the envelope for diagnostics.
func (o OutputSpec) String() string {
	switch o.kind {
	case outputNone:
		return "none"
	case outputAny:
		return "any"
	case outputTypes:
		parts := make([]string, len(o.types))
		for i, t := range o.types {
			parts[i] = t.String()
		}
		return strings.Join(parts, " | ")
	}
	return "undeclared"
}
