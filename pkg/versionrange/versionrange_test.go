package versionrange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Dialects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string // canonical comparator-chain form
	}{
		{"bare comparator", "< 4.17.2", "<4.17.2"},
		{"comparator chain", ">= 1.0.0 < 2.0.0", ">=1.0.0 <2.0.0"},
		{"comma separated", ">=1.0.0, <2.0.0", ">=1.0.0 <2.0.0"},
		{"phrase form", "1.0.0 to 2.0.0", ">=1.0.0 <=2.0.0"},
		{"interval closed-open", "[1.0.0,2.0.0)", ">=1.0.0 <2.0.0"},
		{"interval open-closed", "(1.0.0,2.0.0]", ">1.0.0 <=2.0.0"},
		{"interval closed", "[1.0.0,2.0.0]", ">=1.0.0 <=2.0.0"},
		{"interval open", "(1.0.0,2.0.0)", ">1.0.0 <2.0.0"},
		{"interval unbounded low", "(,1.5.0]", "<=1.5.0"},
		{"bare version", "1.2.3", "=1.2.3"},
		{"double equals", "== 2.0.0", "=2.0.0"},
		{"v prefix", ">=v1.0.0", ">=1.0.0"},
		{"padded components", "[1,2)", ">=1.0.0 <2.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.String())
		})
	}
}

func TestParse_Unrecognized(t *testing.T) {
	for _, raw := range []string{"", "all versions before the fix", "affected before 2.0 on windows"} {
		_, err := Parse(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

// Each dialect must agree with its canonical comparator-set equivalent.
func TestMatches_DialectEquivalence(t *testing.T) {
	equivalents := [][2]string{
		{"1.0.0 to 2.0.0", ">=1.0.0 <=2.0.0"},
		{"[1.0.0,2.0.0)", ">=1.0.0 <2.0.0"},
		{"(1.0.0,2.0.0]", ">1.0.0 <=2.0.0"},
		{">=1.0.0, <2.0.0", ">=1.0.0 <2.0.0"},
	}
	versions := []string{"0.9.9", "1.0.0", "1.5.0", "2.0.0", "2.0.1"}
	for _, pair := range equivalents {
		for _, v := range versions {
			assert.Equal(t, Matches(v, pair[1]), Matches(v, pair[0]),
				"version %s: %q should agree with %q", v, pair[0], pair[1])
		}
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		installed string
		raw       string
		want      bool
	}{
		{"4.17.20", "< 4.17.21", true},
		{"4.18.0", "< 4.17.0", false},
		{"1.0.0", ">=1.0.0 <2.0.0", true},
		{"2.0.0", ">=1.0.0 <2.0.0", false},
		{"2.0.0", "1.0.0 to 2.0.0", true},
		{"1.0.0", "[1.0.0,2.0.0)", true},
		{"1.0.0", "(1.0.0,2.0.0)", false},
		{"1.2.3", "1.2.3", true},
		{"1.2.4", "1.2.3", false},
		// ^ and v prefixes on the installed version are tolerated.
		{"^4.17.20", "< 4.17.21", true},
		{"v1.5.0", "[1.0.0,2.0.0)", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Matches(tt.installed, tt.raw),
			"Matches(%q, %q)", tt.installed, tt.raw)
	}
}

// Unparseable input must never hide a potential vulnerability.
func TestMatches_SafeDefaults(t *testing.T) {
	assert.True(t, Matches("1.0.0", "entirely unparseable gibberish"))
	assert.True(t, Matches("not-a-version", "< 1.0.0"))
	assert.True(t, Matches("1.0.0", ""))
	assert.True(t, Matches("1.0.0", "   "))
}
