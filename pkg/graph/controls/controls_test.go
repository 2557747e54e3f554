package controls

import (
	"errors"
	"reflect"
	"testing"

	"github.com/knowledgebase/netgraph/pkg/graph/layout"
)

type recordingZoomer struct {
	calls []string
}

func (z *recordingZoomer) ZoomIn()  { z.calls = append(z.calls, "in") }
func (z *recordingZoomer) ZoomOut() { z.calls = append(z.calls, "out") }
func (z *recordingZoomer) Reset()   { z.calls = append(z.calls, "reset") }

func TestNewDefaults(t *testing.T) {
	b := New([]string{"financial", "Control", "bribery"}, &recordingZoomer{})

	snap := b.Snapshot()
	if !reflect.DeepEqual(snap.EntityTypes, []string{"organization", "person"}) {
		t.Fatalf("EntityTypes = %v, want both", snap.EntityTypes)
	}
	if !reflect.DeepEqual(snap.RelationshipTypes, []string{"bribery", "control", "financial"}) {
		t.Fatalf("RelationshipTypes = %v, want every data type", snap.RelationshipTypes)
	}
	if snap.Layout != layout.ModeForce || snap.SearchTerm != "" {
		t.Fatalf("snapshot = %+v, want force layout and empty search", snap)
	}
	known := snap.KnownRelationshipTypes
	if len(known) != len(KnownRelationshipTypes)+1 || known[len(known)-1] != "bribery" {
		t.Fatalf("KnownRelationshipTypes = %v, want fixed list plus bribery", known)
	}
}

func TestToggleIsExactlyOneValue(t *testing.T) {
	b := New([]string{"financial", "control"}, &recordingZoomer{})

	on, err := b.ToggleRelationshipType("CONTROL")
	if err != nil || on {
		t.Fatalf("ToggleRelationshipType(CONTROL) = %v, %v, want false, nil", on, err)
	}
	if got := b.Snapshot().RelationshipTypes; !reflect.DeepEqual(got, []string{"financial"}) {
		t.Fatalf("after removal = %v, want [financial]", got)
	}

	on, err = b.ToggleRelationshipType(" control ")
	if err != nil || !on {
		t.Fatalf("ToggleRelationshipType(control) = %v, %v, want true, nil", on, err)
	}
	if got := b.Snapshot().RelationshipTypes; !reflect.DeepEqual(got, []string{"control", "financial"}) {
		t.Fatalf("after re-add = %v, want [control financial]", got)
	}

	on, err = b.ToggleEntityType("Person")
	if err != nil || on {
		t.Fatalf("ToggleEntityType(Person) = %v, %v, want false, nil", on, err)
	}
	if got := b.Snapshot().EntityTypes; !reflect.DeepEqual(got, []string{"organization"}) {
		t.Fatalf("EntityTypes = %v, want [organization]", got)
	}
}

func TestToggleRejectsEmptyType(t *testing.T) {
	b := New(nil, &recordingZoomer{})
	before := b.Snapshot()

	if _, err := b.ToggleEntityType("  "); !errors.Is(err, ErrEmptyType) {
		t.Fatalf("ToggleEntityType(blank) = %v, want ErrEmptyType", err)
	}
	if _, err := b.ToggleRelationshipType(""); !errors.Is(err, ErrEmptyType) {
		t.Fatalf("ToggleRelationshipType(empty) = %v, want ErrEmptyType", err)
	}
	if !reflect.DeepEqual(before, b.Snapshot()) {
		t.Fatalf("rejected toggle changed state")
	}
}

func TestSetSearchTerm(t *testing.T) {
	b := New(nil, &recordingZoomer{})

	if !b.SetSearchTerm("rafi") {
		t.Fatalf("SetSearchTerm(rafi) reported no change")
	}
	if b.SetSearchTerm("rafi") {
		t.Fatalf("repeated SetSearchTerm reported a change")
	}
	if got := b.FilterState().SearchTerm; got != "rafi" {
		t.Fatalf("SearchTerm = %q, want rafi", got)
	}
}

func TestSetLayout(t *testing.T) {
	b := New(nil, &recordingZoomer{})

	tests := []struct {
		mode    string
		changed bool
		err     error
	}{
		{mode: "hierarchical", changed: true},
		{mode: "Hierarchical", changed: false},
		{mode: "radial", err: ErrUnknownLayout},
		{mode: "force", changed: true},
	}
	for _, tc := range tests {
		changed, err := b.SetLayout(tc.mode)
		if !errors.Is(err, tc.err) || changed != tc.changed {
			t.Fatalf("SetLayout(%q) = %v, %v, want %v, %v", tc.mode, changed, err, tc.changed, tc.err)
		}
	}
	if b.Layout() != layout.ModeForce {
		t.Fatalf("Layout = %v, want force", b.Layout())
	}
}

func TestZoomForwardsToCanvas(t *testing.T) {
	z := &recordingZoomer{}
	b := New(nil, z)

	for _, dir := range []string{"in", "OUT", "reset"} {
		if err := b.Zoom(dir); err != nil {
			t.Fatalf("Zoom(%q): %v", dir, err)
		}
	}
	if err := b.Zoom("sideways"); !errors.Is(err, ErrUnknownZoom) {
		t.Fatalf("Zoom(sideways) = %v, want ErrUnknownZoom", err)
	}
	if !reflect.DeepEqual(z.calls, []string{"in", "out", "reset"}) {
		t.Fatalf("calls = %v", z.calls)
	}
}

func TestFilterStateIsACopy(t *testing.T) {
	b := New([]string{"financial"}, &recordingZoomer{})
	state := b.FilterState()

	if _, err := b.ToggleEntityType("person"); err != nil {
		t.Fatal(err)
	}
	if !state.EntityTypes.Has("person") {
		t.Fatalf("toggle leaked into an earlier FilterState")
	}
}
