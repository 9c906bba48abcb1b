package scene

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/miktos/realtime-viewer/internal/geom"
)

func rawScene(objects ...RawObject) *RawScene {
	return &RawScene{Objects: objects, SceneName: "Test"}
}

func obj(name string) RawObject {
	return RawObject{Name: name, Type: "MESH"}
}

func objAt(name string, loc geom.Vec3) RawObject {
	return RawObject{Name: name, Type: "MESH", Location: loc}
}

// assertChanges checks kind(name) pairs in exact order.
func assertChanges(t *testing.T, got []Change, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d changes, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		key := string(got[i].Kind) + "(" + got[i].Name + ")"
		if key != w {
			t.Errorf("change[%d] = %s, want %s", i, key, w)
		}
	}
}

func TestUpdate_EqualStatesEmitNothing(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)
	s.Update(rawScene(obj("Cube"), obj("Sphere")))

	changes := s.Update(rawScene(obj("Cube"), obj("Sphere")))
	if len(changes) != 0 {
		t.Fatalf("equal snapshots yielded %d events: %+v", len(changes), changes)
	}
}

func TestUpdate_FirstSnapshotEmitsAdds(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)
	changes := s.Update(rawScene(obj("Cube"), obj("Sphere")))
	assertChanges(t, changes, "added(Cube)", "added(Sphere)")
}

func TestUpdate_DiffOrdering(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)
	s.Update(rawScene(obj("A"), obj("B"), obj("C")))

	// B deleted, D and E added, A and C moved. Order must be: additions in
	// new-state order, deletions in old-state order, modifications in
	// new-state order.
	changes := s.Update(rawScene(
		objAt("A", geom.Vec3{1, 0, 0}),
		obj("D"),
		objAt("C", geom.Vec3{0, 2, 0}),
		obj("E"),
	))
	assertChanges(t, changes, "added(D)", "added(E)", "deleted(B)", "modified(A)", "modified(C)")
}

func TestUpdate_ModifiedFields(t *testing.T) {
	vis := false
	scale := geom.Vec3{2, 2, 2}
	tests := []struct {
		name string
		next RawObject
		want bool
	}{
		{"identical", obj("X"), false},
		{"type", RawObject{Name: "X", Type: "LIGHT"}, true},
		{"location", objAt("X", geom.Vec3{0, 0, 1}), true},
		{"rotation", RawObject{Name: "X", Type: "MESH", Rotation: geom.Vec3{0.5, 0, 0}}, true},
		{"scale", RawObject{Name: "X", Type: "MESH", Scale: &scale}, true},
		{"visibility", RawObject{Name: "X", Type: "MESH", Visible: &vis}, true},
		{"selection", RawObject{Name: "X", Type: "MESH", Selected: true}, true},
		{"payload", RawObject{Name: "X", Type: "MESH", Data: map[string]any{"mat": "steel"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSynchronizer(Config{}, nil)
			s.Update(rawScene(obj("X")))
			changes := s.Update(rawScene(tt.next))
			if tt.want {
				assertChanges(t, changes, "modified(X)")
			} else if len(changes) != 0 {
				t.Fatalf("unexpected changes: %+v", changes)
			}
		})
	}
}

// The canonical three-cycle scenario: Cube and Sphere added, Cube deleted,
// Sphere moved.
func TestUpdate_ThreeCycleScenario(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)

	first := s.Update(rawScene(obj("Cube"), obj("Sphere")))
	assertChanges(t, first, "added(Cube)", "added(Sphere)")

	second := s.Update(rawScene(obj("Sphere")))
	assertChanges(t, second, "deleted(Cube)")

	third := s.Update(rawScene(objAt("Sphere", geom.Vec3{3, 0, 0})))
	assertChanges(t, third, "modified(Sphere)")
}

func TestHistory_BoundedFIFO(t *testing.T) {
	s := NewSynchronizer(Config{HistoryCap: 3}, nil)
	s.Update(rawScene(obj("A")))
	s.Update(rawScene(obj("A"), obj("B")))
	s.Update(rawScene(obj("A"), obj("B"), obj("C")))
	s.Update(rawScene(obj("A"), obj("B"), obj("C"), obj("D")))

	history := s.RecentChanges(0)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want capacity 3", len(history))
	}
	// Oldest entry (added A) must have been evicted first.
	assertChanges(t, history, "added(B)", "added(C)", "added(D)")
}

func TestClear_EmitsSingleClearedEvent(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)
	s.Update(rawScene(obj("Cube")))

	var got []Change
	s.Subscribe("recorder", func(c Change) error {
		got = append(got, c)
		return nil
	})
	s.Clear()

	assertChanges(t, got, "cleared()")
	if s.Current().Len() != 0 {
		t.Errorf("scene not empty after clear: %d objects", s.Current().Len())
	}
}

func TestObservers_OrderAndIsolation(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)

	var order []string
	s.Subscribe("first", func(c Change) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	s.Subscribe("second", func(c Change) error {
		order = append(order, "second")
		panic("worse")
	})
	s.Subscribe("third", func(c Change) error {
		order = append(order, "third")
		return nil
	})

	s.Update(rawScene(obj("Cube")))

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("observer calls = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestObservers_Async(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)

	var mu sync.Mutex
	seen := make(chan Change, 4)
	s.SubscribeAsync("async", func(c Change) error {
		mu.Lock()
		defer mu.Unlock()
		seen <- c
		return nil
	})

	s.Update(rawScene(obj("Cube")))

	select {
	case c := <-seen:
		if c.Kind != ChangeAdded || c.Name != "Cube" {
			t.Errorf("got %s(%s), want added(Cube)", c.Kind, c.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("async observer never invoked")
	}
}

func TestDrain_BoundedBatch(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)
	s.Update(rawScene(obj("A"), obj("B"), obj("C")))

	batch := s.Drain(2)
	assertChanges(t, batch, "added(A)", "added(B)")

	rest := s.Drain(10)
	assertChanges(t, rest, "added(C)")

	if got := s.Drain(10); got != nil {
		t.Errorf("drain on empty queue returned %+v", got)
	}
}

type scriptedProvider struct {
	mu     sync.Mutex
	scenes []*RawScene
	calls  int
}

func (p *scriptedProvider) Scene(ctx context.Context) (*RawScene, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.scenes) == 0 {
		return nil, nil
	}
	next := p.scenes[0]
	if len(p.scenes) > 1 {
		p.scenes = p.scenes[1:]
	}
	return next, nil
}

func TestSyncLoop_StartStop(t *testing.T) {
	provider := &scriptedProvider{scenes: []*RawScene{rawScene(obj("Cube"))}}
	s := NewSynchronizer(Config{Interval: 5 * time.Millisecond}, provider)

	ctx := context.Background()
	s.Start(ctx)
	if !s.SyncStatus().Syncing {
		t.Fatal("not syncing after Start")
	}
	s.Start(ctx) // second start is a no-op

	deadline := time.Now().Add(time.Second)
	for s.Current() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Current() == nil {
		t.Fatal("loop never published a snapshot")
	}

	s.Stop()
	if s.SyncStatus().Syncing {
		t.Fatal("still syncing after Stop")
	}
	s.Stop() // idempotent
}

func TestObjectDataAndSummary(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)

	if sum := s.Summarize(); sum.Status != "no_scene" {
		t.Errorf("empty summary status = %q, want no_scene", sum.Status)
	}
	if _, ok := s.ObjectData("Cube"); ok {
		t.Error("ObjectData found object in empty synchronizer")
	}

	raw := rawScene(objAt("Cube", geom.Vec3{1, 2, 3}), obj("Sphere"))
	raw.ActiveObject = "Cube"
	s.Update(raw)

	o, ok := s.ObjectData("Cube")
	if !ok {
		t.Fatal("ObjectData(Cube) not found")
	}
	if o.Transform.Location != (geom.Vec3{1, 2, 3}) {
		t.Errorf("Cube location = %v", o.Transform.Location)
	}

	sum := s.Summarize()
	if sum.Status != "active" || sum.Objects != 2 {
		t.Errorf("summary = %+v, want active with 2 objects", sum)
	}
	if sum.SceneName != "Test" || sum.ActiveObject != "Cube" {
		t.Errorf("summary identity = %q/%q", sum.SceneName, sum.ActiveObject)
	}
}

func TestRecentChanges_Limited(t *testing.T) {
	s := NewSynchronizer(Config{}, nil)
	s.Update(rawScene(obj("A"), obj("B"), obj("C")))

	if got := s.RecentChanges(2); len(got) != 2 {
		t.Fatalf("RecentChanges(2) returned %d", len(got))
	}
	// The newest entries win.
	got := s.RecentChanges(2)
	if got[len(got)-1].Name != "C" {
		t.Errorf("last recent change = %s, want C", got[len(got)-1].Name)
	}
}
