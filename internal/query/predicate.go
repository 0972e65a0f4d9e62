package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/sakif/snippet-store/internal/apperror"
)

// Op is the kind of constraint a filter field accepts.
type Op int

const (
	OpEquals   Op = iota + 1 // column = ?  (or IS NULL for a nil value)
	OpRange                  // column >= ? and/or column <= ?
	OpIn                     // column IN (?, ...)
	OpContains               // column LIKE %text% with wildcards escaped
	OpFlag                   // boolean column or named condition
)

func (o Op) String() string {
	switch o {
	case OpEquals:
		return "equals"
	case OpRange:
		return "range"
	case OpIn:
		return "one-of"
	case OpContains:
		return "contains"
	case OpFlag:
		return "flag"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Constraint is the value side of one filter entry. Build them with Equals,
// Between, AtLeast, AtMost, OneOf, Contains and Flag.
type Constraint struct {
	op     Op
	value  any
	lower  any
	upper  any
	values []any
	text   string
	flag   bool
}

// Op reports which kind of constraint c is.
func (c Constraint) Op() Op { return c.op }

// Equals matches column = v. A nil v (or nil pointer) matches NULL.
func Equals(v any) Constraint { return Constraint{op: OpEquals, value: deref(v)} }

// Between matches lower <= column <= upper. Either bound may be nil (or a nil
// pointer), in which case it is left open and contributes no fragment.
func Between(lower, upper any) Constraint {
	return Constraint{op: OpRange, lower: deref(lower), upper: deref(upper)}
}

func AtLeast(lower any) Constraint { return Between(lower, nil) }
func AtMost(upper any) Constraint  { return Between(nil, upper) }

// OneOf matches column IN (values...). An empty set matches nothing.
func OneOf[T any](values ...T) Constraint {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Constraint{op: OpIn, values: vs}
}

// Contains matches rows whose column contains text, case-insensitively.
// Wildcard characters in text are matched literally.
func Contains(text string) Constraint { return Constraint{op: OpContains, text: text} }

// Flag sets a boolean field or named condition.
func Flag(set bool) Constraint { return Constraint{op: OpFlag, flag: set} }

// Filter maps field names to constraints. A field that is absent from the
// map contributes nothing; absence is the only way to skip a field.
type Filter map[string]Constraint

// Set stores c under field and returns f for chaining.
func (f Filter) Set(field string, c Constraint) Filter {
	f[field] = c
	return f
}

// Condition is a named, reusable boolean predicate whose parameters are
// computed at build time (usually from the clock). Flag(true) applies it,
// Flag(false) applies its negation.
type Condition struct {
	Name string
	SQL  string
	Args func(now time.Time) []any
}

// Field declares one filterable field: its public name, the static SQL
// expression it constrains, and the constraint kind it accepts.
type Field struct {
	Name      string
	Column    string
	Op        Op
	Condition *Condition // OpFlag only; replaces "Column = ?"
}

// Where is an ordered list of predicate fragments and the parameters that
// match their placeholders, joined with AND.
type Where struct {
	Fragments []string
	Args      []any
}

// And appends a fixed fragment with its parameters.
func (w *Where) And(fragment string, args ...any) {
	w.Fragments = append(w.Fragments, fragment)
	w.Args = append(w.Args, args...)
}

// SQL renders " WHERE a AND b", or "" when there are no fragments.
func (w Where) SQL() string {
	if len(w.Fragments) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.Fragments, " AND ")
}

// Builder turns a Filter into a Where for one schema. Fields are visited in
// declaration order, not map order, so the same set of active fields always
// yields the same SQL text.
type Builder struct {
	fields []Field
	index  map[string]int
	like   string
	now    func() time.Time
}

// NewBuilder declares the closed set of filterable fields. Duplicate names or
// malformed declarations are programming errors and panic.
func NewBuilder(d *Dialect, fields ...Field) *Builder {
	b := &Builder{
		fields: fields,
		index:  make(map[string]int, len(fields)),
		like:   d.LikeOperator(),
		now:    time.Now,
	}
	for i, f := range fields {
		if f.Name == "" || (f.Column == "" && f.Condition == nil) {
			panic(fmt.Sprintf("query: filter field %d is incomplete", i))
		}
		if f.Condition != nil && f.Op != OpFlag {
			panic(fmt.Sprintf("query: filter field %s: conditions must be flags", f.Name))
		}
		if _, dup := b.index[f.Name]; dup {
			panic(fmt.Sprintf("query: duplicate filter field %s", f.Name))
		}
		b.index[f.Name] = i
	}
	return b
}

// WithClock replaces the time source used by named conditions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	cp := *b
	cp.now = now
	return &cp
}

// Fields lists the declared field names in build order.
func (b *Builder) Fields() []string {
	names := make([]string, len(b.fields))
	for i, f := range b.fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether name is a declared field.
func (b *Builder) Has(name string) bool {
	_, ok := b.index[name]
	return ok
}

// OpOf returns the constraint kind of a declared field.
func (b *Builder) OpOf(name string) (Op, bool) {
	i, ok := b.index[name]
	if !ok {
		return 0, false
	}
	return b.fields[i].Op, true
}

// Build produces the fragments and parameters for f. Unknown field names
// fail with apperror.ErrUnknownFilterField; a constraint of the wrong kind
// fails with apperror.ErrValidation.
func (b *Builder) Build(f Filter) (Where, error) {
	var unknown []string
	for name := range f {
		if !b.Has(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Where{}, apperror.UnknownFilterField(unknown[0])
	}

	var w Where
	for _, field := range b.fields {
		c, ok := f[field.Name]
		if !ok {
			continue
		}
		if c.op != field.Op {
			return Where{}, apperror.ValidationFailed(field.Name,
				fmt.Sprintf("filter %s takes a %s constraint, got %s", field.Name, field.Op, c.op))
		}
		b.apply(&w, field, c)
	}
	return w, nil
}

func (b *Builder) apply(w *Where, field Field, c Constraint) {
	col := field.Column
	switch field.Op {
	case OpEquals:
		if c.value == nil {
			w.And(col + " IS NULL")
			return
		}
		w.And(col+" = ?", c.value)
	case OpRange:
		if c.lower != nil {
			w.And(col+" >= ?", c.lower)
		}
		if c.upper != nil {
			w.And(col+" <= ?", c.upper)
		}
	case OpIn:
		if len(c.values) == 0 {
			w.And("1 = 0")
			return
		}
		w.And(col+" IN ("+placeholders(len(c.values))+")", c.values...)
	case OpContains:
		w.And(col+" "+b.like+" ? ESCAPE '!'", "%"+EscapeLike(c.text)+"%")
	case OpFlag:
		if field.Condition == nil {
			w.And(col+" = ?", c.flag)
			return
		}
		var args []any
		if field.Condition.Args != nil {
			args = field.Condition.Args(b.now())
		}
		if c.flag {
			w.And("("+field.Condition.SQL+")", args...)
		} else {
			w.And("NOT ("+field.Condition.SQL+")", args...)
		}
	}
}

// EscapeLike escapes LIKE metacharacters with '!', the escape character every
// supported backend accepts without string-literal quirks.
func EscapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// deref unwraps pointers so callers can pass optional fields directly; a nil
// pointer becomes a nil interface.
func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
