// Package route compiles URL and method templates into anchored,
// case-insensitive matchers and exposes the captured placeholder values.
//
// A URL template is literal text with {identifier} placeholders:
//
//	p, _ := route.Compile("{scheme}://{domain}.{tld}/{path1}/{path2}")
//	params, ok := p.Match("https://foo.bar/baz/bing")
//	// ok == true, params.Value("domain") == "foo"
//
// Each placeholder captures one or more characters lazily, slashes
// included. Everything outside placeholders matches literally.
package route

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Any is the catch-all template. It matches every method and every URL.
const Any = "{anything}"

var (
	// ErrInvalidTemplate is returned when a template cannot be compiled.
	ErrInvalidTemplate = errors.New("route: invalid template")

	// ErrParameterMissing is the sentinel behind ParameterMissingError.
	ErrParameterMissing = errors.New("route: parameter missing")
)

// placeholderRE finds {identifier} tokens. Braces around anything else are
// left as literal text.
var placeholderRE = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Pattern is a compiled template.
type Pattern struct {
	template string
	re       *regexp.Regexp
	names    []string
}

// Compile compiles a URL template. Literal segments are escaped, each
// {identifier} becomes a lazy named group and the result is anchored at
// both ends and matched case-insensitively.
func Compile(template string) (*Pattern, error) {
	expr, names, err := translate(template)
	if err != nil {
		return nil, err
	}
	return build(template, "^"+expr+"$", names)
}

// MustCompile is like Compile but panics on error.
func MustCompile(template string) *Pattern {
	p, err := Compile(template)
	if err != nil {
		panic(err)
	}
	return p
}

// CompileMethods compiles a "|"-delimited method alternation such as
// "get|post". An alternative may be a placeholder or "*" to accept any
// method.
func CompileMethods(pattern string) (*Pattern, error) {
	alternatives := strings.Split(pattern, "|")
	exprs := make([]string, 0, len(alternatives))
	var names []string
	for _, alt := range alternatives {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return nil, fmt.Errorf("%w: empty method alternative in %q", ErrInvalidTemplate, pattern)
		}
		if alt == "*" {
			exprs = append(exprs, ".+?")
			continue
		}
		expr, n, err := translate(alt)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		names = append(names, n...)
	}
	if err := checkDuplicates(pattern, names); err != nil {
		return nil, err
	}
	return build(pattern, "^(?:"+strings.Join(exprs, "|")+")$", names)
}

func build(template, expr string, names []string) (*Pattern, error) {
	re, err := regexp.Compile("(?is)" + expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTemplate, template, err)
	}
	return &Pattern{template: template, re: re, names: names}, nil
}

// translate escapes the literal parts of template and replaces each
// placeholder with a named capture group.
func translate(template string) (string, []string, error) {
	var (
		b     strings.Builder
		names []string
		last  int
	)
	for _, loc := range placeholderRE.FindAllStringSubmatchIndex(template, -1) {
		b.WriteString(regexp.QuoteMeta(template[last:loc[0]]))
		name := template[loc[2]:loc[3]]
		names = append(names, name)
		b.WriteString("(?P<" + name + ">.+?)")
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(template[last:]))

	if err := checkDuplicates(template, names); err != nil {
		return "", nil, err
	}
	return b.String(), names, nil
}

func checkDuplicates(template string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return fmt.Errorf("%w: placeholder {%s} repeated in %q", ErrInvalidTemplate, n, template)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// Template returns the source template.
func (p *Pattern) Template() string { return p.template }

// Expr returns the compiled regular expression.
func (p *Pattern) Expr() string { return p.re.String() }

// Names returns the placeholder names in template order.
func (p *Pattern) Names() []string {
	return append([]string(nil), p.names...)
}

// MatchString reports whether s matches the pattern.
func (p *Pattern) MatchString(s string) bool {
	return p.re.MatchString(s)
}

// Match matches s and returns the captured placeholders.
func (p *Pattern) Match(s string) (Params, bool) {
	m := p.re.FindStringSubmatch(s)
	if m == nil {
		return Params{}, false
	}
	values := make(map[string]string, len(p.names))
	for i, name := range p.re.SubexpNames() {
		if name != "" && i < len(m) {
			values[name] = m[i]
		}
	}
	return Params{values: values}, true
}

// Params holds the values captured by a match. It is immutable.
type Params struct {
	values map[string]string
}

// NewParams builds Params from a map. The map is copied.
func NewParams(values map[string]string) Params {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Params{values: cp}
}

// Get returns the value captured for name.
func (p Params) Get(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Value returns the value captured for name or "".
func (p Params) Value(name string) string {
	return p.values[name]
}

// Require returns the value captured for name or a *ParameterMissingError.
func (p Params) Require(name string) (string, error) {
	v, ok := p.values[name]
	if !ok {
		return "", &ParameterMissingError{Name: name, Available: p.Names()}
	}
	return v, nil
}

// Has reports whether name was captured.
func (p Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Len returns the number of captured values.
func (p Params) Len() int { return len(p.values) }

// Names returns the captured names sorted alphabetically.
func (p Params) Names() []string {
	names := make([]string, 0, len(p.values))
	for n := range p.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the captured values.
func (p Params) All() map[string]string {
	cp := make(map[string]string, len(p.values))
	for k, v := range p.values {
		cp[k] = v
	}
	return cp
}

// Expand replaces each {name} in s with the captured value. Unknown
// placeholders are left untouched.
func (p Params) Expand(s string) string {
	return placeholderRE.ReplaceAllStringFunc(s, func(tok string) string {
		if v, ok := p.values[tok[1:len(tok)-1]]; ok {
			return v
		}
		return tok
	})
}

// ParameterMissingError is returned by Params.Require.
type ParameterMissingError struct {
	Name      string
	Available []string
}

func (e *ParameterMissingError) Error() string {
	return fmt.Sprintf("route: parameter %q was not captured (available: %s)",
		e.Name, strings.Join(e.Available, ", "))
}

// Unwrap returns ErrParameterMissing.
func (e *ParameterMissingError) Unwrap() error { return ErrParameterMissing }
