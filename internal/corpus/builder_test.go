package corpus

import (
	"strings"
	"testing"

	"github.com/prodexhq/prodex/pkg/types"
)

func TestBuildEntityTextDeterministic(t *testing.T) {
	e := &types.Entity{
		Type:        types.EntityFeature,
		ID:          "f1",
		Name:        "Login",
		Description: "OAuth login",
		Attributes: map[string]string{
			"status": "planned",
			"owner":  "alice",
			"effort": "M",
		},
	}

	first := BuildEntityText(e)
	for i := 0; i < 20; i++ {
		if got := BuildEntityText(e); got != first {
			t.Fatalf("BuildEntityText not deterministic on iteration %d:\n%q\nvs\n%q", i, got, first)
		}
	}
}

func TestBuildEntityTextLayout(t *testing.T) {
	e := &types.Entity{
		Type:        types.EntityFeature,
		ID:          "f1",
		Name:        "Login",
		Description: "OAuth login",
		Attributes:  map[string]string{"status": "planned", "owner": "alice"},
	}

	got := BuildEntityText(e)
	want := "Feature: Login\nDescription: OAuth login\nowner: alice\nstatus: planned"
	if got != want {
		t.Errorf("BuildEntityText:\ngot  %q\nwant %q", got, want)
	}
}

func TestBuildEntityTextNilAndMinimal(t *testing.T) {
	if got := BuildEntityText(nil); got != "" {
		t.Errorf("nil entity: got %q, want empty", got)
	}

	e := &types.Entity{Type: types.EntityPage, ID: "p1", Name: "Roadmap"}
	if got := BuildEntityText(e); got != "Page: Roadmap" {
		t.Errorf("minimal entity: got %q", got)
	}
}

func TestBuildCorpusGroupsAndOrders(t *testing.T) {
	entities := []types.Entity{
		{Type: types.EntityRelease, ID: "r2", Name: "v2.0"},
		{Type: types.EntityFeature, ID: "f2", Name: "Search"},
		{Type: types.EntityFeature, ID: "f1", Name: "Login"},
		{Type: types.EntityRelease, ID: "r1", Name: "v1.0"},
	}

	doc := BuildCorpus("t1", entities)

	if !strings.HasPrefix(doc, "# Product Knowledge Base (t1)\n") {
		t.Errorf("missing header: %q", doc[:40])
	}

	// Features section precedes releases, ids sorted within each group.
	idxFeatures := strings.Index(doc, "## Features")
	idxReleases := strings.Index(doc, "## Releases")
	if idxFeatures < 0 || idxReleases < 0 || idxFeatures > idxReleases {
		t.Fatalf("sections out of order: features=%d releases=%d", idxFeatures, idxReleases)
	}
	if strings.Index(doc, "### Login") > strings.Index(doc, "### Search") {
		t.Error("feature ids not sorted within group")
	}
	if strings.Index(doc, "### v1.0") > strings.Index(doc, "### v2.0") {
		t.Error("release ids not sorted within group")
	}
}

func TestBuildCorpusDeterministic(t *testing.T) {
	entities := []types.Entity{
		{Type: types.EntityFeature, ID: "f1", Name: "Login", Attributes: map[string]string{"a": "1", "b": "2", "c": "3"}},
		{Type: types.EntityRequirement, ID: "q1", Name: "SSO required"},
		{Type: types.EntityPage, ID: "p1", Name: "Spec page"},
	}

	first := BuildCorpus("t1", entities)
	for i := 0; i < 20; i++ {
		// Shuffle input order; output must not change.
		entities[0], entities[2] = entities[2], entities[0]
		if got := BuildCorpus("t1", entities); got != first {
			t.Fatalf("BuildCorpus not deterministic on iteration %d", i)
		}
	}
}
