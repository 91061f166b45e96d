package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Diagnostic reports a logical path that could not be resolved.
type Diagnostic struct {
	LogicalPath string   `json:"logical_path"`
	Profiles    []string `json:"profiles"`
	Candidates  []string `json:"candidates,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("no variant of %s matches profiles [%s]", d.LogicalPath, strings.Join(d.Profiles, " "))
}

// Resolution is the outcome of selecting variants for a profile list.
type Resolution struct {
	Profiles   []string          `json:"profiles"`
	Paths      map[string]string `json:"paths"`
	Unused     []string          `json:"unused,omitempty"`
	Unresolved []Diagnostic      `json:"unresolved,omitempty"`
}

// Selected reports the physical path chosen for logical.
func (r Resolution) Selected(logical string) (string, bool) {
	p, ok := r.Paths[logical]
	return p, ok
}

// Resolve picks one physical file for each logical path that has tagged
// variants. Profiles are tried in priority order; the first profile with any
// candidate decides. Ties on that profile are broken by the remaining
// profiles each candidate also carries, then by fewest tags, then by path.
// If no profile matches, an untagged file with the same logical path is
// used; otherwise the path is reported as unresolved.
func (m *Map) Resolve(profiles []string) Resolution {
	active := NormalizeProfiles(profiles)
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := Resolution{
		Profiles: active,
		Paths:    map[string]string{},
	}
	selected := map[string]struct{}{}
	logicals := make([]string, 0, len(m.variants))
	for logical := range m.variants {
		logicals = append(logicals, logical)
	}
	sort.Strings(logicals)

	for _, logical := range logicals {
		byTag := m.variants[logical]
		choice, ok := m.pick(byTag, active)
		if !ok {
			if fallback := sortedSet(m.plain[logical]); len(fallback) > 0 {
				choice, ok = fallback[0], true
			}
		}
		if !ok {
			diag := Diagnostic{
				LogicalPath: logical,
				Profiles:    append([]string(nil), active...),
				Candidates:  m.variantPaths(byTag),
			}
			m.logger.Printf("profile: %s", diag)
			res.Unresolved = append(res.Unresolved, diag)
			continue
		}
		res.Paths[logical] = choice
		selected[choice] = struct{}{}
	}

	for physical, info := range m.infos {
		if _, ok := selected[physical]; ok {
			continue
		}
		if info.Tagged() {
			res.Unused = append(res.Unused, physical)
			continue
		}
		if _, shadowed := res.Paths[info.LogicalPath]; shadowed {
			res.Unused = append(res.Unused, physical)
		}
	}
	sort.Strings(res.Unused)
	return res
}

func (m *Map) pick(byTag map[string]map[string]struct{}, active []string) (string, bool) {
	for i, tag := range active {
		candidates := sortedSet(byTag[tag])
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0], true
		}
		best := m.bestByScore(candidates, active[i+1:])
		if len(best) == 1 {
			return best[0], true
		}
		sort.SliceStable(best, func(a, b int) bool {
			ta, tb := len(m.infos[best[a]].Tags), len(m.infos[best[b]].Tags)
			if ta != tb {
				return ta < tb
			}
			return best[a] < best[b]
		})
		return best[0], true
	}
	return "", false
}

// bestByScore keeps the candidates with the highest score. A candidate scores
// 2^(len(rest)-j) for each rest[j] it carries, so an earlier remaining
// profile outweighs any number of later ones.
func (m *Map) bestByScore(candidates, rest []string) []string {
	if len(rest) == 0 {
		return candidates
	}
	var best []string
	maxScore := -1
	for _, physical := range candidates {
		info := m.infos[physical]
		score := 0
		for j, tag := range rest {
			if info.Has(tag) {
				score += 1 << (len(rest) - j)
			}
		}
		switch {
		case score > maxScore:
			maxScore = score
			best = []string{physical}
		case score == maxScore:
			best = append(best, physical)
		}
	}
	return best
}

func (m *Map) variantPaths(byTag map[string]map[string]struct{}) []string {
	set := map[string]struct{}{}
	for _, paths := range byTag {
		for p := range paths {
			set[p] = struct{}{}
		}
	}
	return sortedSet(set)
}
