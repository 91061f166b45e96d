package resolver

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/kingrea/weft/internal/workflow"
)

func workspaceOf(projects ...workflow.Project) *workflow.Workspace {
	return &workflow.Workspace{Root: "/repo", Projects: projects}
}

func project(name, path string, deps ...string) workflow.Project {
	return workflow.Project{Path: path, Config: workflow.ProjectConfig{Name: name, Deps: deps}}
}

func TestOrderPlacesDependenciesFirst(t *testing.T) {
	g, err := New(workspaceOf(
		project("app", "apps/app", "ui", "core"),
		project("ui", "packages/ui", "core"),
		project("core", "packages/core"),
		project("docs", "docs"),
	))
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	order, err := g.Order()
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	want := []string{"core", "ui", "app", "docs"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestOrderReportsCycles(t *testing.T) {
	g, err := New(workspaceOf(
		project("a", "a", "b"),
		project("b", "b", "c"),
		project("c", "c", "a"),
	))
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	node, _ := g.Node("b")
	if node.State != NodeStateCycle {
		t.Fatalf("node b state = %s, want cycle before Order is called", node.State)
	}
	_, err = g.Order()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestCyclicGraphIsSafeForConcurrentReads(t *testing.T) {
	g, err := New(workspaceOf(
		project("a", "a", "b"),
		project("b", "b", "a"),
		project("c", "c", "a"),
	))
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := g.Affected("a"); len(got) != 3 {
					t.Errorf("affected = %v", got)
					return
				}
				for _, n := range g.Nodes() {
					_ = n.State
				}
			}
		}()
	}
	wg.Wait()
	if got := g.Affected("a"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("affected = %v, want declaration order", got)
	}
}

func TestOrderReturnsCopy(t *testing.T) {
	g, _ := New(workspaceOf(project("app", "app", "core"), project("core", "core")))
	first, _ := g.Order()
	first[0] = "mutated"
	again, _ := g.Order()
	if !reflect.DeepEqual(again, []string{"core", "app"}) {
		t.Fatalf("order = %v after caller mutation", again)
	}
}

func TestMissingDependenciesAreRecorded(t *testing.T) {
	g, err := New(workspaceOf(project("app", "app", "left-pad")))
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	node, _ := g.Node("app")
	if node.State != NodeStateMissing || !reflect.DeepEqual(node.Missing, []string{"left-pad"}) {
		t.Fatalf("node = %+v", node)
	}
	if len(node.Dependencies) != 0 {
		t.Fatalf("missing deps should not remain as edges")
	}
}

func TestQueueLimitsToTargets(t *testing.T) {
	g, _ := New(workspaceOf(
		project("app", "app", "core"),
		project("core", "core"),
		project("docs", "docs"),
	))
	order, err := g.Queue("app")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"core", "app"}) {
		t.Fatalf("queue = %v", order)
	}
}

func TestAffectedIncludesTransitiveDependents(t *testing.T) {
	g, _ := New(workspaceOf(
		project("app", "app", "ui"),
		project("ui", "ui", "core"),
		project("core", "core"),
		project("docs", "docs"),
	))
	if got := g.Affected("core"); !reflect.DeepEqual(got, []string{"core", "ui", "app"}) {
		t.Fatalf("affected = %v", got)
	}
	if got := g.Affected("nope"); got != nil {
		t.Fatalf("unknown project should yield nil, got %v", got)
	}
}

func TestRefsAreRelative(t *testing.T) {
	g, _ := New(workspaceOf(
		project("app", "apps/web", "core", "shared"),
		project("core", "packages/core"),
		project("shared", "apps/shared"),
	))
	want := []string{"../../packages/core", "../shared"}
	if got := g.Refs("app"); !reflect.DeepEqual(got, want) {
		t.Fatalf("refs = %v, want %v", got, want)
	}
}

func TestRefsForSiblingsAndNesting(t *testing.T) {
	cases := []struct{ from, to, want string }{
		{"packages/app", "packages/core", "../core"},
		{"apps", "apps/web", "./web"},
		{"apps/web", "apps", ".."},
		{"lib", "lib", "."},
	}
	for _, tc := range cases {
		if got := relativePath(tc.from, tc.to); got != tc.want {
			t.Fatalf("relativePath(%q, %q) = %q, want %q", tc.from, tc.to, got, tc.want)
		}
	}
}
