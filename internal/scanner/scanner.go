// Package scanner vets behavior script source before it is packaged.
//
// The checks are textual: import declarations, whole-word type names,
// dangerous call patterns, and a few payload-smuggling heuristics. They are
// deliberately over-broad, and they are not a parser. Aliasing, names built
// from concatenated strings, or other indirection can slip past them; the
// load-time component filter in package sandbox is the second layer.
package scanner

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// Result is the verdict for one script. Safe is true iff Violations is empty.
type Result struct {
	Safe       bool
	Violations []string
}

// Checker holds compiled rules. The zero value is not usable; use New or
// the package-level Check.
type Checker struct {
	namespaces  []string
	types       []typeRule
	patterns    []patternRule
	obfuscation []patternRule
}

type typeRule struct {
	name string
	re   *regexp.Regexp
}

type patternRule struct {
	text string
	re   *regexp.Regexp
}

var usingDecl = regexp.MustCompile(`using\s+([\w\.]+)\s*;`)

var defaultChecker = New()

// New compiles the built-in rule set.
func New() *Checker {
	c := &Checker{namespaces: disallowedNamespaces}
	for _, t := range disallowedTypes {
		c.types = append(c.types, typeRule{
			name: t,
			re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(t) + `\b`),
		})
	}
	for _, p := range disallowedPatterns {
		c.patterns = append(c.patterns, patternRule{text: p, re: regexp.MustCompile(`(?i)` + p)})
	}
	c.obfuscation = []patternRule{
		{text: "Potential obfuscation detected: suspicious base64 string", re: regexp.MustCompile(base64Literal)},
		{text: "Potential obfuscation detected: excessive string concatenation", re: regexp.MustCompile(concatChain)},
		{text: "Potential obfuscation detected: suspicious hex array", re: regexp.MustCompile(hexByteRun)},
	}
	return c
}

// Check runs every rule against source. All four checks run even after a
// failure so the full violation list is reported.
func (c *Checker) Check(source string) Result {
	var v []string
	v = c.checkImports(source, v)
	v = c.checkTypes(source, v)
	v = c.checkPatterns(source, v)
	v = c.checkObfuscation(source, v)
	return Result{Safe: len(v) == 0, Violations: v}
}

func (c *Checker) checkImports(source string, v []string) []string {
	for _, m := range usingDecl.FindAllStringSubmatch(source, -1) {
		ns := m[1]
		for _, bad := range c.namespaces {
			if ns == bad || strings.HasPrefix(ns, bad+".") {
				v = append(v, "Disallowed namespace: "+ns)
			}
		}
	}
	return v
}

func (c *Checker) checkTypes(source string, v []string) []string {
	for _, t := range c.types {
		if t.re.MatchString(source) {
			v = append(v, "Disallowed type found: "+t.name)
		}
	}
	return v
}

func (c *Checker) checkPatterns(source string, v []string) []string {
	for _, p := range c.patterns {
		if p.re.MatchString(source) {
			v = append(v, "Disallowed pattern detected: "+p.text)
		}
	}
	return v
}

func (c *Checker) checkObfuscation(source string, v []string) []string {
	for _, p := range c.obfuscation {
		if p.re.MatchString(source) {
			v = append(v, p.text)
		}
	}
	return v
}

// Check runs the built-in rules against source.
func Check(source string) Result { return defaultChecker.Check(source) }

// IsSafe reports the verdict and the violations for source.
func IsSafe(source string) (bool, []string) {
	r := Check(source)
	return r.Safe, r.Violations
}

// CheckFile reads path and checks its contents.
func CheckFile(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, xerrors.Wrapf(err, "read script %s", path)
	}
	return Check(string(data)), nil
}

// Patterns returns the ordered disallowed-pattern list.
func Patterns() []string {
	out := make([]string, len(disallowedPatterns))
	copy(out, disallowedPatterns)
	return out
}

// LogViolations writes one warning per violation for the named script.
func LogViolations(ctx context.Context, l log.Logger, script string, violations []string) {
	l = log.OrNop(l)
	l.Warn(ctx, "script failed security check", "script", script, "violations", len(violations))
	for _, v := range violations {
		l.Warn(ctx, "script violation", "script", script, "violation", v)
	}
}
