package profile

import (
	"reflect"
	"testing"
)

func mapWith(paths ...string) *Map {
	m := NewMap()
	for _, p := range paths {
		m.Add(p)
	}
	return m
}

func TestParseExtractsTagsAndLogicalPath(t *testing.T) {
	cases := []struct {
		in      string
		logical string
		tags    []string
	}{
		{in: "src/a.ts", logical: "./src/a"},
		{in: "./src/a#web.ts", logical: "./src/a", tags: []string{"#web"}},
		{in: "src/a#web#prod.tsx", logical: "./src/a", tags: []string{"#web", "#prod"}},
		{in: "lib#node/io.ts", logical: "./lib/io", tags: []string{"#node"}},
		{in: "./a#web", logical: "./a", tags: []string{"#web"}},
	}
	for _, tc := range cases {
		info := Parse(tc.in)
		if info.LogicalPath != tc.logical {
			t.Fatalf("%s: logical = %q, want %q", tc.in, info.LogicalPath, tc.logical)
		}
		if !reflect.DeepEqual(info.Tags, tc.tags) {
			t.Fatalf("%s: tags = %v, want %v", tc.in, info.Tags, tc.tags)
		}
	}
}

func TestNormalizeProfiles(t *testing.T) {
	got := NormalizeProfiles([]string{"web", "#web", " prod "})
	want := []string{"#web", "#prod"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("profiles = %v, want %v", got, want)
	}
	if got := NormalizeProfiles(nil); !reflect.DeepEqual(got, []string{"#default"}) {
		t.Fatalf("empty profiles = %v, want [#default]", got)
	}
}

func TestSimpleOverride(t *testing.T) {
	m := mapWith("./a", "./a#web")
	res := m.Resolve([]string{"web"})
	if got, _ := res.Selected("./a"); got != "./a#web" {
		t.Fatalf("web selection = %q, want ./a#web", got)
	}
	if !reflect.DeepEqual(res.Unused, []string{"./a"}) {
		t.Fatalf("unused = %v, want [./a]", res.Unused)
	}

	res = m.Resolve([]string{"default"})
	if got, _ := res.Selected("./a"); got != "./a" {
		t.Fatalf("default selection = %q, want untagged ./a", got)
	}
	if len(res.Unresolved) != 0 {
		t.Fatalf("unexpected diagnostics %v", res.Unresolved)
	}
}

func TestUnresolvedWithoutFallback(t *testing.T) {
	m := mapWith("./a#web")
	res := m.Resolve([]string{"default"})
	if _, ok := res.Selected("./a"); ok {
		t.Fatalf("expected ./a to be omitted")
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0].LogicalPath != "./a" {
		t.Fatalf("unresolved = %v", res.Unresolved)
	}
	if !reflect.DeepEqual(res.Unresolved[0].Candidates, []string{"./a#web"}) {
		t.Fatalf("candidates = %v", res.Unresolved[0].Candidates)
	}
}

func TestTieBreakBySpecificity(t *testing.T) {
	m := mapWith("./a#web", "./a#web#prod")
	res := m.Resolve([]string{"web", "prod"})
	if got, _ := res.Selected("./a"); got != "./a#web#prod" {
		t.Fatalf("selection = %q, want ./a#web#prod", got)
	}
}

func TestHigherRemainingProfileOutweighsLowerOnes(t *testing.T) {
	m := mapWith("./a#web#prod.ts", "./a#web#node#esm.ts")
	res := m.Resolve([]string{"web", "prod", "node", "esm"})
	if got, _ := res.Selected("./a"); got != "./a#web#prod.ts" {
		t.Fatalf("selection = %q, want ./a#web#prod.ts", got)
	}
}

func TestEqualScoresPreferFewestTagsThenPath(t *testing.T) {
	m := mapWith("./a#web#node#test.ts", "./a#web#node.ts")
	res := m.Resolve([]string{"web", "node"})
	if got, _ := res.Selected("./a"); got != "./a#web#node.ts" {
		t.Fatalf("selection = %q, want ./a#web#node.ts", got)
	}

	m = mapWith("./b#web#y.ts", "./b#web#x.ts")
	res = m.Resolve([]string{"web"})
	if got, _ := res.Selected("./b"); got != "./b#web#x.ts" {
		t.Fatalf("selection = %q, want ./b#web#x.ts", got)
	}
}

func TestFirstMatchingProfileDecides(t *testing.T) {
	m := mapWith("./a#node.ts", "./a#web.ts")
	res := m.Resolve([]string{"node", "web"})
	if got, _ := res.Selected("./a"); got != "./a#node.ts" {
		t.Fatalf("selection = %q, want ./a#node.ts", got)
	}
	if !reflect.DeepEqual(res.Unused, []string{"./a#web.ts"}) {
		t.Fatalf("unused = %v", res.Unused)
	}
}

func TestResolutionIsDeterministic(t *testing.T) {
	files := []string{"./a#web.ts", "./a#web#prod.ts", "./a.ts", "./b#node.ts", "./c#web#x.ts", "./c#web#y.ts"}
	first := mapWith(files...).Resolve([]string{"web", "prod"})
	reversed := make([]string, len(files))
	for i, f := range files {
		reversed[len(files)-1-i] = f
	}
	for i := 0; i < 5; i++ {
		again := mapWith(reversed...).Resolve([]string{"web", "prod"})
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("resolution differs:\n%+v\n%+v", first, again)
		}
	}
}

func TestIncrementalRemove(t *testing.T) {
	m := mapWith("./a.ts", "./a#web.ts", "./a#web#prod.ts")
	if !m.Remove("a#web#prod.ts") {
		t.Fatalf("expected remove to find the file")
	}
	res := m.Resolve([]string{"web", "prod"})
	if got, _ := res.Selected("./a"); got != "./a#web.ts" {
		t.Fatalf("selection after remove = %q", got)
	}
	m.Remove("./a#web.ts")
	if len(m.LogicalPaths()) != 0 {
		t.Fatalf("expected no tagged logical paths, got %v", m.LogicalPaths())
	}
	if m.Remove("./a#web.ts") {
		t.Fatalf("second remove should report false")
	}
	if m.Len() != 1 {
		t.Fatalf("expected only the untagged file to remain, got %d", m.Len())
	}
}
