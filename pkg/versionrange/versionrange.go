// Package versionrange normalizes the version-range notations found in
// vulnerability advisories into a single comparator-set grammar and
// evaluates whether an installed version falls inside a range.
//
// Advisory feeds are inconsistent: the same advisory may express its
// affected range as "< 4.17.21", ">=1.0.0, <2.0.0", "1.0.0 to 2.0.0" or
// "[1.0.0,2.0.0)". All of these are parsed into the same comparator set
// before evaluation.
package versionrange

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Op is a comparison operator in a comparator.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpEQ Op = "="
)

// Comparator is a single version comparison, e.g. ">= 1.2.3".
type Comparator struct {
	Op      Op
	Version *semver.Version
}

// ComparatorSet is a conjunction of comparators; a version is inside the
// set when every comparator holds.
type ComparatorSet []Comparator

var (
	comparatorRe = regexp.MustCompile(`(<=|>=|<|>|==|=)\s*v?(\d+(?:\.\d+){0,2}(?:[-+][0-9A-Za-z.-]+)?)`)
	toFormRe     = regexp.MustCompile(`^v?(\d+(?:\.\d+){0,2}(?:[-+][0-9A-Za-z.-]+)?)\s+to\s+v?(\d+(?:\.\d+){0,2}(?:[-+][0-9A-Za-z.-]+)?)$`)
	intervalRe   = regexp.MustCompile(`^([\[\(])\s*v?([^,\s]*)\s*,\s*v?([^,\s\]\)]*)\s*([\]\)])$`)
	bareVerRe    = regexp.MustCompile(`^v?\d+(?:\.\d+){0,2}(?:[-+][0-9A-Za-z.-]+)?$`)
)

// Parse normalizes a raw textual range into a ComparatorSet.
//
// Accepted dialects:
//   - comparator chains:  "< 4.17.2", ">= 1.0.0 < 2.0.0"
//   - comma-separated:    ">=1.0.0, <2.0.0"
//   - phrase form:        "1.0.0 to 2.0.0"  (inclusive on both ends)
//   - interval notation:  "[1.0.0,2.0.0)", "(1.0,2.0]", "(,1.5]"
//   - a bare version:     "1.2.3"  (exact match)
func Parse(raw string) (ComparatorSet, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty range")
	}

	if m := intervalRe.FindStringSubmatch(s); m != nil {
		return parseInterval(m)
	}

	if m := toFormRe.FindStringSubmatch(strings.ToLower(s)); m != nil {
		lo, err := parseVersion(m[1])
		if err != nil {
			return nil, err
		}
		hi, err := parseVersion(m[2])
		if err != nil {
			return nil, err
		}
		return ComparatorSet{{OpGE, lo}, {OpLE, hi}}, nil
	}

	if bareVerRe.MatchString(s) {
		v, err := parseVersion(s)
		if err != nil {
			return nil, err
		}
		return ComparatorSet{{OpEQ, v}}, nil
	}

	// Comparator chain, with or without comma separators.
	matches := comparatorRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("unrecognized range notation: %q", raw)
	}
	// Reject input with leftover garbage beyond separators, so prose like
	// "affected before 2.0" is not half-parsed.
	leftover := comparatorRe.ReplaceAllString(s, "")
	leftover = strings.Trim(leftover, " ,&")
	if leftover != "" {
		return nil, fmt.Errorf("unrecognized range notation: %q", raw)
	}

	set := make(ComparatorSet, 0, len(matches))
	for _, m := range matches {
		op := Op(m[1])
		if op == "==" {
			op = OpEQ
		}
		v, err := parseVersion(m[2])
		if err != nil {
			return nil, err
		}
		set = append(set, Comparator{op, v})
	}
	return set, nil
}

func parseInterval(m []string) (ComparatorSet, error) {
	open, loStr, hiStr, close := m[1], m[2], m[3], m[4]
	var set ComparatorSet

	if loStr != "" {
		lo, err := parseVersion(loStr)
		if err != nil {
			return nil, err
		}
		op := OpGE
		if open == "(" {
			op = OpGT
		}
		set = append(set, Comparator{op, lo})
	}
	if hiStr != "" {
		hi, err := parseVersion(hiStr)
		if err != nil {
			return nil, err
		}
		op := OpLE
		if close == ")" {
			op = OpLT
		}
		set = append(set, Comparator{op, hi})
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("interval with no endpoints")
	}
	return set, nil
}

// parseVersion is lenient about missing components: "1" and "1.2" are
// padded to full semver, matching how advisories abbreviate versions.
func parseVersion(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimPrefix(s, "v"))
	if err != nil {
		return nil, fmt.Errorf("bad version %q: %w", s, err)
	}
	return v, nil
}

// Contains reports whether v satisfies every comparator in the set.
func (cs ComparatorSet) Contains(v *semver.Version) bool {
	for _, c := range cs {
		var ok bool
		switch c.Op {
		case OpLT:
			ok = v.LessThan(c.Version)
		case OpLE:
			ok = v.LessThan(c.Version) || v.Equal(c.Version)
		case OpGT:
			ok = v.GreaterThan(c.Version)
		case OpGE:
			ok = v.GreaterThan(c.Version) || v.Equal(c.Version)
		case OpEQ:
			ok = v.Equal(c.Version)
		}
		if !ok {
			return false
		}
	}
	return true
}

// String renders the canonical comparator-chain form.
func (cs ComparatorSet) String() string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = fmt.Sprintf("%s%s", c.Op, c.Version.String())
	}
	return strings.Join(parts, " ")
}

// Matches reports whether the installed version falls inside the raw
// range. An unparseable range or installed version matches: a possible
// vulnerability is reported rather than silently hidden.
func Matches(installed, raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return true
	}
	set, err := Parse(raw)
	if err != nil {
		return true
	}
	v, err := semver.NewVersion(strings.TrimLeft(strings.TrimSpace(installed), "^~=v "))
	if err != nil {
		return true
	}
	return set.Contains(v)
}
