// Package pattern compiles route rules such as "/users/<id>/orders" into
// matchers that extract named placeholder values from request paths.
package pattern

import (
	"fmt"
	"strings"
)

// Error is returned by Compile when a rule is malformed.
type Error struct {
	Rule   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid route rule '%s': %s", e.Rule, e.Reason)
}

// segment is a single "/" delimited piece of a rule. When name is empty the
// segment is a literal and only prefix is used.
type segment struct {
	prefix string
	name   string
	suffix string
}

func (s segment) literal() bool {
	return s.name == ""
}

// match returns the captured value for the segment, if any.
func (s segment) match(part string) (string, bool) {
	if s.literal() {
		return "", part == s.prefix
	}

	if len(part) <= len(s.prefix)+len(s.suffix) {
		return "", false
	}

	if !strings.HasPrefix(part, s.prefix) || !strings.HasSuffix(part, s.suffix) {
		return "", false
	}

	return part[len(s.prefix) : len(part)-len(s.suffix)], true
}

// Pattern is a compiled route rule.
type Pattern struct {
	rule     string
	segments []segment
	names    []string
}

// Compile parses rule into a Pattern.
func Compile(rule string) (*Pattern, error) {
	if !strings.HasPrefix(rule, "/") {
		return nil, &Error{Rule: rule, Reason: "must start with '/'"}
	}

	normalized := Normalize(rule)
	parts := strings.Split(normalized, "/")

	p := &Pattern{rule: normalized, segments: make([]segment, 0, len(parts))}
	seen := map[string]bool{}

	for _, part := range parts {
		seg, err := parseSegment(rule, part)
		if err != nil {
			return nil, err
		}

		if !seg.literal() {
			if seen[seg.name] {
				return nil, &Error{Rule: rule, Reason: fmt.Sprintf("duplicate placeholder '%s'", seg.name)}
			}
			seen[seg.name] = true
			p.names = append(p.names, seg.name)
		}

		p.segments = append(p.segments, seg)
	}

	return p, nil
}

// MustCompile is like Compile but panics if the rule is invalid.
func MustCompile(rule string) *Pattern {
	p, err := Compile(rule)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSegment(rule, part string) (segment, error) {
	start := strings.IndexByte(part, '<')
	end := strings.IndexByte(part, '>')

	if start < 0 && end < 0 {
		return segment{prefix: part}, nil
	}

	if start < 0 || end < start {
		return segment{}, &Error{Rule: rule, Reason: "unbalanced placeholder brackets"}
	}

	name := part[start+1 : end]
	suffix := part[end+1:]

	if strings.ContainsAny(name, "<") {
		return segment{}, &Error{Rule: rule, Reason: "unbalanced placeholder brackets"}
	}

	if strings.ContainsAny(suffix, "<>") {
		if strings.Count(suffix, "<") == strings.Count(suffix, ">") {
			return segment{}, &Error{Rule: rule, Reason: fmt.Sprintf("segment '%s' holds more than one placeholder", part)}
		}
		return segment{}, &Error{Rule: rule, Reason: "unbalanced placeholder brackets"}
	}

	if !validName(name) {
		return segment{}, &Error{Rule: rule, Reason: fmt.Sprintf("invalid placeholder name '%s'", name)}
	}

	return segment{prefix: part[:start], name: name, suffix: suffix}, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}

	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}

	return true
}

// Normalize drops a single trailing slash from a non-root path.
func Normalize(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

// String returns the normalized rule the pattern was compiled from.
func (p *Pattern) String() string {
	return p.rule
}

// IsStatic returns true when the pattern holds no placeholders.
func (p *Pattern) IsStatic() bool {
	return len(p.names) == 0
}

// Names returns the placeholder names in the order they appear.
func (p *Pattern) Names() []string {
	return append([]string(nil), p.names...)
}

// Match checks path against the pattern. On success the captured placeholder
// values are returned keyed by name; the map is empty, not nil, for static
// patterns.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	path = Normalize(path)

	if p.IsStatic() {
		if path != p.rule {
			return nil, false
		}
		return map[string]string{}, true
	}

	parts := strings.Split(path, "/")
	if len(parts) != len(p.segments) {
		return nil, false
	}

	params := make(map[string]string, len(p.names))
	for i, seg := range p.segments {
		value, ok := seg.match(parts[i])
		if !ok {
			return nil, false
		}

		if !seg.literal() {
			params[seg.name] = value
		}
	}

	return params, true
}
