package engine

import (
	"regexp"
	"strings"
)

// SelectorKind discriminates the InputSelector sum type.
type SelectorKind int

const (
	// SelectKey reads a single context key (a dotted key is navigated like
	// a path).
	SelectKey SelectorKind = iota
	// SelectKeys projects several context keys into an object whose keys are
	// the selector's key strings as written (a dotted key is read like a
	// path but stored under the literal dotted string).
	SelectKeys
	// SelectPath reads a dot-navigated path.
	SelectPath
	// SelectTemplate recursively interpolates ${path} expressions.
	SelectTemplate
	// SelectFull shallow-copies the whole context.
	SelectFull
	// SelectStatic returns a literal value, ignoring context entirely.
	SelectStatic
)

// InputSelector extracts a handler's input from the execution context. It
// is a small selector language: exactly one of Key, Keys,
// Path, Template, Full, Static is meaningful, per Kind.
type InputSelector struct {
	Kind     SelectorKind
	Key      string
	Keys     []string
	Path     string
	Template Value
	Static   Value
}

// single-expression template pattern: a whole string of the form "${a.b.c}"
// with nothing else around it preserves the resolved value's original type
// instead of stringifying it.
var singleExprPattern = regexp.MustCompile(`^\$\{([^}]*)\}$`)

var exprPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// Resolve evaluates selector against the given context snapshot, returning
// the handler input. Undefined path reads yield Null (for Key/Path and a
// whole-string ${path} Template), are omitted (for Keys), or become the empty
// string (interpolated inside a larger Template string), never an error — the
// only error path is a malformed selector (unknown Kind).
func Resolve(selector InputSelector, ctx Value) (Value, error) {
	switch selector.Kind {
	case SelectKey:
		if v, ok := ctx.GetPath(selector.Key); ok {
			return v, nil
		}
		return Null, nil

	case SelectKeys:
		out := map[string]Value{}
		for _, k := range selector.Keys {
			if v, ok := ctx.GetPath(k); ok {
				out[k] = v
			}
		}
		return ObjectValue(out), nil

	case SelectPath:
		if v, ok := ctx.GetPath(selector.Path); ok {
			return v, nil
		}
		return Null, nil

	case SelectTemplate:
		return interpolate(selector.Template, ctx), nil

	case SelectFull:
		return shallowCopy(ctx), nil

	case SelectStatic:
		return selector.Static, nil

	default:
		return Null, NewError(CodeInputError, "unknown input selector kind")
	}
}

func shallowCopy(v Value) Value {
	if v.Kind != KindObject {
		return v
	}
	out := make(map[string]Value, len(v.Obj))
	for k, e := range v.Obj {
		out[k] = e
	}
	return ObjectValue(out)
}

// interpolate walks strings, arrays and objects in tmpl, replacing ${path}
// expressions by resolving path against ctx. A whole string matching
// ^\$\{PATH\}$ returns the raw resolved value, preserving its type; any
// other string has each ${path} occurrence replaced by the stringified
// value (undefined paths become the empty string).
func interpolate(tmpl Value, ctx Value) Value {
	switch tmpl.Kind {
	case KindString:
		if m := singleExprPattern.FindStringSubmatch(tmpl.Str); m != nil {
			path := strings.TrimSpace(m[1])
			if v, ok := ctx.GetPath(path); ok {
				return v
			}
			return Null
		}
		replaced := exprPattern.ReplaceAllStringFunc(tmpl.Str, func(match string) string {
			sub := exprPattern.FindStringSubmatch(match)
			path := strings.TrimSpace(sub[1])
			if v, ok := ctx.GetPath(path); ok {
				return v.ToString()
			}
			return ""
		})
		return StringValue(replaced)

	case KindArray:
		out := make([]Value, len(tmpl.Arr))
		for i, e := range tmpl.Arr {
			out[i] = interpolate(e, ctx)
		}
		return ArrayValue(out...)

	case KindObject:
		out := make(map[string]Value, len(tmpl.Obj))
		for k, e := range tmpl.Obj {
			out[k] = interpolate(e, ctx)
		}
		return ObjectValue(out)

	default:
		return tmpl
	}
}
