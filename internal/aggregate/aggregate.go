package aggregate

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/types"
)

// Result is the aggregated issue list of one package.
type Result struct {
	Issues     []types.Issue
	Suppressed int
	Duplicates int
	// RuleHits[i] counts the issues removed by rules[i]. An issue matching
	// several rules is credited to the first.
	RuleHits []int
}

// Aggregate concatenates the per-plugin issue lists, drops issues matched by
// a suppression rule, removes fingerprint duplicates (the first occurrence
// wins) and sorts the rest into report order. The inputs are not modified.
func Aggregate(lists [][]types.Issue, rules []config.SuppressionRule) (Result, error) {
	matchers, err := compileRules(rules)
	if err != nil {
		return Result{}, err
	}

	res := Result{RuleHits: make([]int, len(rules))}
	seen := map[string]bool{}
	for _, list := range lists {
	next:
		for _, is := range list {
			for i, m := range matchers {
				if m.match(is) {
					res.RuleHits[i]++
					res.Suppressed++
					continue next
				}
			}
			if seen[is.Fingerprint] {
				res.Duplicates++
				continue
			}
			seen[is.Fingerprint] = true
			res.Issues = append(res.Issues, is)
		}
	}

	sort.SliceStable(res.Issues, func(i, j int) bool { return types.Less(res.Issues[i], res.Issues[j]) })
	return res, nil
}

type matcher struct {
	rule    config.SuppressionRule
	message *regexp.Regexp
}

func compileRules(rules []config.SuppressionRule) ([]matcher, error) {
	out := make([]matcher, len(rules))
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("suppression rule %d (%s): %w", i, r.Source, err)
		}
		out[i] = matcher{rule: r}
		if r.Message != "" {
			out[i].message = regexp.MustCompile(r.Message)
		}
	}
	return out, nil
}

func (m matcher) match(is types.Issue) bool {
	r := m.rule
	if r.Plugin != "" && r.Plugin != is.Plugin {
		return false
	}
	if r.Code != "" && r.Code != is.Code {
		return false
	}
	if r.Fingerprint != "" && r.Fingerprint != is.Fingerprint {
		return false
	}
	if r.Path != "" && !MatchPath(r.Path, is.File) {
		return false
	}
	if m.message != nil && !m.message.MatchString(is.Message) {
		return false
	}
	return true
}

// MatchPath reports whether the slash-separated path p matches pattern.
// Segments follow path.Match; a "**" segment matches zero or more whole
// directories. A pattern without a slash also matches the base name of p.
// Matching is case-sensitive.
func MatchPath(pattern, p string) bool {
	if !strings.Contains(pattern, "/") {
		if ok, _ := path.Match(pattern, path.Base(p)); ok {
			return true
		}
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(p, "/"))
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			pat = pat[1:]
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegments(pat, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], segs[0]); !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}
