package gc

import "testing"

func TestBuildReferenceGraphDedupes(t *testing.T) {
	g := BuildReferenceGraph(&GCData{
		Nodes: map[string][]string{
			"/ds1": {"/ds2", "/ds2", "/ds1"},
		},
		Roots: []string{"/ds1", "/ds1"},
	})

	if got := g.Routes("/ds1"); len(got) != 2 {
		t.Errorf("Routes(/ds1) = %v, want 2 deduplicated routes", got)
	}
	if got := g.Routes(RootPath); len(got) != 1 || got[0] != "/ds1" {
		t.Errorf("Routes(/) = %v, want [/ds1]", got)
	}
}

func TestMarkReachability(t *testing.T) {
	g := BuildReferenceGraph(&GCData{
		Nodes: map[string][]string{
			"/ds1": {"/ds2"},
			"/ds2": {},
			"/ds3": {"/ds4"}, // unreachable island
			"/ds4": {},
		},
		Roots: []string{"/ds1"},
	})

	reachable := g.Mark()

	for _, path := range []string{RootPath, "/ds1", "/ds2"} {
		if _, ok := reachable[path]; !ok {
			t.Errorf("%s should be reachable", path)
		}
	}
	for _, path := range []string{"/ds3", "/ds4"} {
		if _, ok := reachable[path]; ok {
			t.Errorf("%s should not be reachable", path)
		}
	}
}

func TestMarkToleratesCyclesAndUnknownTargets(t *testing.T) {
	g := BuildReferenceGraph(&GCData{
		Nodes: map[string][]string{
			"/a": {"/b", "/a"},
			"/b": {"/a", "/ghost"}, // /ghost never reported by the runtime
		},
		Roots: []string{"/a"},
	})

	reachable := g.Mark()

	if _, ok := reachable["/ghost"]; !ok {
		t.Error("referenced but unreported node should count as reachable")
	}
	if len(reachable) != 4 { // root, /a, /b, /ghost
		t.Errorf("reachable = %d nodes, want 4", len(reachable))
	}
}

func TestGraphPathsExcludesRoot(t *testing.T) {
	g := BuildReferenceGraph(&GCData{
		Nodes: map[string][]string{"/b": nil, "/a": nil},
		Roots: []string{"/a"},
	})

	paths := g.Paths()
	if len(paths) != 2 || paths[0] != "/a" || paths[1] != "/b" {
		t.Errorf("Paths = %v, want sorted [/a /b]", paths)
	}
	if g.Len() != 3 {
		t.Errorf("Len = %d, want 3 including synthetic root", g.Len())
	}
}
