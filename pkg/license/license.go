// Package license parses the license declarations found in package
// registry metadata into SPDX identifiers and classifies them for
// policy checks. Registry data is messy: a declaration may be a bare
// identifier, an SPDX expression, an object, an array of objects, or a
// "SEE LICENSE IN <file>" pointer. Parsing never fails; unrecognized
// input normalizes to an explicit Unknown.
package license

import (
	"regexp"
	"sort"
	"strings"
)

// Type buckets an SPDX identifier for policy purposes.
type Type string

const (
	TypePermissive  Type = "permissive"
	TypeCopyleft    Type = "copyleft"
	TypeProprietary Type = "proprietary"
	TypeUnknown     Type = "unknown"
)

// Risk is the review burden a license carries.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// License is the normalized result of parsing one declaration.
type License struct {
	// Raw is the original declaration as a display string.
	Raw string
	// Identifiers are the SPDX identifiers that might apply. For an
	// OR/AND expression every identifier is extracted: the policy
	// question is "which licenses might apply", not "which must".
	Identifiers []string
	// Unknown is set when no identifier could be extracted.
	Unknown bool
	// FileReference holds the file path from a "SEE LICENSE IN" form.
	FileReference string
}

// Classification carries policy metadata for one identifier.
type Classification struct {
	ID                       string
	Type                     Type
	Risk                     Risk
	RequiresAttribution      bool
	RequiresSourceDisclosure bool
}

// Policy is the caller-supplied compatibility policy.
type Policy struct {
	// Allowed is the identifier allow-list, matched case-insensitively.
	Allowed []string
	// ProjectLicense is the consuming project's own license, used by the
	// conflict matrix (e.g. "proprietary", "MIT", "GPL-3.0").
	ProjectLicense string
}

// CompatibilityResult is the outcome of checking one License against a Policy.
type CompatibilityResult struct {
	Compatible bool
	// NeedsReview is set for unknown licenses, which are never compatible.
	NeedsReview bool
	// Conflicts lists conflict-matrix hits, e.g. "GPL-3.0 conflicts with
	// proprietary project license".
	Conflicts []string
}

var seeLicenseRe = regexp.MustCompile(`(?i)^SEE LICEN[CS]E IN\s+(.+)$`)

// Parse normalizes any registry license declaration. Accepted shapes:
// a string (identifier, SPDX expression, or "SEE LICENSE IN <file>"),
// a map with a "type" or "license" key, an array of any of these
// (deduplicated), or nil/unrecognized (normalizes to Unknown).
func Parse(raw interface{}) License {
	switch v := raw.(type) {
	case nil:
		return unknown("")
	case string:
		return parseString(v)
	case map[string]interface{}:
		if s, ok := v["type"].(string); ok {
			return parseString(s)
		}
		if s, ok := v["license"].(string); ok {
			return parseString(s)
		}
		return unknown("")
	case []interface{}:
		return parseArray(v)
	default:
		return unknown("")
	}
}

func parseArray(items []interface{}) License {
	seen := map[string]bool{}
	var ids []string
	var raws []string
	for _, item := range items {
		sub := Parse(item)
		raws = append(raws, sub.Raw)
		for _, id := range sub.Identifiers {
			key := strings.ToLower(id)
			if !seen[key] {
				seen[key] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return unknown(strings.Join(raws, ", "))
	}
	return License{Raw: strings.Join(raws, " OR "), Identifiers: ids}
}

func parseString(s string) License {
	s = strings.TrimSpace(s)
	if s == "" {
		return unknown("")
	}
	if m := seeLicenseRe.FindStringSubmatch(s); m != nil {
		return License{Raw: s, Unknown: true, FileReference: strings.TrimSpace(m[1])}
	}

	// Boolean SPDX expression: extract every identifier regardless of
	// operator, dropping parentheses.
	cleaned := strings.NewReplacer("(", " ", ")", " ").Replace(s)
	fields := strings.Fields(cleaned)
	seen := map[string]bool{}
	var ids []string
	for _, f := range fields {
		switch strings.ToUpper(f) {
		case "OR", "AND", "WITH":
			continue
		}
		key := strings.ToLower(f)
		if !seen[key] {
			seen[key] = true
			ids = append(ids, f)
		}
	}
	if len(ids) == 0 {
		return unknown(s)
	}
	return License{Raw: s, Identifiers: ids}
}

func unknown(raw string) License {
	if raw == "" {
		raw = "Unknown"
	}
	return License{Raw: raw, Unknown: true}
}

// Expression renders the normalized identifier set as an OR expression.
// Parsing the result yields the same identifier set (idempotence).
func (l License) Expression() string {
	if l.Unknown || len(l.Identifiers) == 0 {
		return "Unknown"
	}
	return strings.Join(l.Identifiers, " OR ")
}

// known copyleft families; matched by prefix after lowercasing so
// version suffixes (GPL-3.0-only, LGPL-2.1+) classify consistently.
var copyleftPrefixes = []string{"agpl", "gpl", "lgpl", "mpl", "epl", "cddl", "eupl", "cecill", "osl", "ms-rl"}

var permissiveSet = map[string]bool{
	"mit": true, "isc": true, "bsd-2-clause": true, "bsd-3-clause": true,
	"bsd-4-clause": true, "apache-2.0": true, "apache-1.1": true,
	"unlicense": true, "0bsd": true, "cc0-1.0": true, "zlib": true,
	"artistic-2.0": true, "bluesoak": true, "wtfpl": true, "python-2.0": true,
	"bsd": true, "apache": true, "cc-by-4.0": true, "cc-by-3.0": true,
	"postgresql": true, "x11": true, "ofl-1.1": true, "boost-1.0": true, "bsl-1.0": true,
}

var proprietaryMarkers = []string{"unlicensed", "proprietary", "commercial", "private"}

// Classify assigns type, risk, and obligation flags to one identifier.
func Classify(id string) Classification {
	lower := strings.ToLower(strings.TrimSpace(id))
	c := Classification{ID: id, Type: TypeUnknown, Risk: RiskMedium}

	if permissiveSet[lower] {
		c.Type = TypePermissive
		c.Risk = RiskLow
		c.RequiresAttribution = lower != "unlicense" && lower != "0bsd" && lower != "cc0-1.0" && lower != "wtfpl"
		return c
	}
	for _, marker := range proprietaryMarkers {
		if strings.Contains(lower, marker) {
			c.Type = TypeProprietary
			c.Risk = RiskHigh
			return c
		}
	}
	for _, prefix := range copyleftPrefixes {
		if strings.HasPrefix(lower, prefix) {
			c.Type = TypeCopyleft
			c.RequiresAttribution = true
			switch {
			case strings.HasPrefix(lower, "agpl"):
				c.Risk = RiskHigh
				c.RequiresSourceDisclosure = true
			case strings.HasPrefix(lower, "lgpl"), strings.HasPrefix(lower, "mpl"), strings.HasPrefix(lower, "epl"):
				c.Risk = RiskMedium
			case strings.HasPrefix(lower, "gpl"):
				c.Risk = RiskHigh
				c.RequiresSourceDisclosure = true
			default:
				c.Risk = RiskMedium
			}
			return c
		}
	}
	// Unknown identifier: flag for review.
	c.Risk = RiskMedium
	return c
}

// strong copyleft identifiers the conflict matrix flags against
// proprietary project licenses, and vice versa.
var conflictPrefixes = []string{"gpl", "agpl"}

// Check evaluates one parsed License against the policy. A license is
// compatible when at least one identifier is in the allow-list and no
// identifier hits the conflict matrix. Unknown licenses are always
// incompatible and flagged for manual review.
func Check(l License, p Policy) CompatibilityResult {
	if l.Unknown || len(l.Identifiers) == 0 {
		return CompatibilityResult{Compatible: false, NeedsReview: true}
	}

	allowed := map[string]bool{}
	for _, a := range p.Allowed {
		allowed[strings.ToLower(a)] = true
	}

	res := CompatibilityResult{}
	anyAllowed := false
	projectLower := strings.ToLower(p.ProjectLicense)
	projectProprietary := false
	for _, marker := range proprietaryMarkers {
		if strings.Contains(projectLower, marker) {
			projectProprietary = true
		}
	}
	projectCopyleft := false
	for _, prefix := range conflictPrefixes {
		if strings.Contains(projectLower, prefix) {
			projectCopyleft = true
		}
	}

	for _, id := range l.Identifiers {
		lower := strings.ToLower(id)
		if allowed[lower] {
			anyAllowed = true
		}
		cls := Classify(id)
		// dependency is strong copyleft, project is proprietary
		if projectProprietary {
			for _, prefix := range conflictPrefixes {
				if strings.HasPrefix(lower, prefix) {
					res.Conflicts = append(res.Conflicts, id+" conflicts with proprietary project license")
				}
			}
		}
		// project is strong copyleft, dependency is proprietary
		if projectCopyleft && cls.Type == TypeProprietary {
			res.Conflicts = append(res.Conflicts, id+" (proprietary) conflicts with copyleft project license "+p.ProjectLicense)
		}
	}
	sort.Strings(res.Conflicts)

	res.Compatible = anyAllowed && len(res.Conflicts) == 0
	return res
}
