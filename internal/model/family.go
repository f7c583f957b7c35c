package model

import "sort"

// DiscoveryMethod records how a Family's membership was established,
// matching the three methods named in preheat's original family
// module: a user-authored config entry, automatic correlation-based
// clustering, or an explicit CLI/manual grouping.
type DiscoveryMethod string

const (
	DiscoveryConfig DiscoveryMethod = "config"
	DiscoveryAuto   DiscoveryMethod = "auto"
	DiscoveryManual DiscoveryMethod = "manual"
)

// Family groups related executables for stat aggregation (supplemented
// feature, SPEC_FULL §S: firefox + firefox-esr, code + code-insiders,
// or — for the AUTO method implemented here — a cluster of Exes whose
// pairwise correlation exceeds a threshold). Families are persisted
// via the wire format's FAMILY tag (spec §4.8) but never change
// Prophet's selection (spec §4.6): they are informational only.
type Family struct {
	ID      string
	Method  DiscoveryMethod
	Members []string // exe paths, sorted
}

// BuildAutoFamilies computes the AUTO-discovered families for the
// current tick: the transitive closure over Markov edges whose Corr()
// is at least threshold. Exes with no edge meeting the threshold are
// not placed in any family. Results are deterministic: members within
// a family are sorted, and families are sorted by their first member.
func BuildAutoFamilies(s *State, threshold float64, newID func() string) []Family {
	parent := make(map[string]string, len(s.exes))
	for path := range s.exes {
		parent[path] = path
	}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, k := range s.markovs {
		if k.Corr() >= threshold {
			union(k.A.Path, k.B.Path)
		}
	}

	groups := make(map[string][]string)
	for path := range s.exes {
		root := find(path)
		groups[root] = append(groups[root], path)
	}

	var families []Family
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		families = append(families, Family{
			ID:      newID(),
			Method:  DiscoveryAuto,
			Members: members,
		})
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].Members[0] < families[j].Members[0]
	})
	return families
}
