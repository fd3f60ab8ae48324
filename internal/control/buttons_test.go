package control

import "testing"

func TestRegistry_EdgeFlags(t *testing.T) {
	r := NewRegistry(nil)

	if got := r.Get(ControlForward); got.Down || got.Pressed || got.Released {
		t.Fatalf("unknown control should read as up: %+v", got)
	}

	r.Set(ControlForward, true)
	b := r.Get(ControlForward)
	if !b.Down || !b.Pressed || b.Released {
		t.Fatalf("after press: %+v", b)
	}

	// Holding across a frame clear keeps Down but drops the edge.
	r.ClearFrame()
	b = r.Get(ControlForward)
	if !b.Down || b.Pressed || b.Released {
		t.Fatalf("after clear while held: %+v", b)
	}

	r.Set(ControlForward, false)
	b = r.Get(ControlForward)
	if b.Down || b.Pressed || !b.Released {
		t.Fatalf("after release: %+v", b)
	}

	r.ClearFrame()
	b = r.Get(ControlForward)
	if b.Down || b.Pressed || b.Released {
		t.Fatalf("after clear while up: %+v", b)
	}
}

func TestRegistry_RedundantWriteIsNoOp(t *testing.T) {
	var calls int
	r := NewRegistry(func(name string, down bool) { calls++ })

	r.Set(ControlJump, true)
	r.Set(ControlJump, true)
	r.Set(ControlJump, true)
	if calls != 1 {
		t.Fatalf("sink calls: got %d want 1", calls)
	}

	r.ClearFrame()
	b := r.Get(ControlJump)
	if !b.Down || b.Pressed {
		t.Fatalf("redundant press must not re-raise edge: %+v", b)
	}

	r.Set(ControlJump, false)
	r.Set(ControlJump, false)
	if calls != 2 {
		t.Fatalf("sink calls: got %d want 2", calls)
	}
}

func TestRegistry_PressReleaseSameFrame(t *testing.T) {
	r := NewRegistry(nil)
	r.Set(ControlCrouch, true)
	r.Set(ControlCrouch, false)

	b := r.Get(ControlCrouch)
	if b.Down || !b.Pressed || !b.Released {
		t.Fatalf("tap within one frame should keep both edges: %+v", b)
	}
}

func TestRegistry_ReleaseAll(t *testing.T) {
	var released []string
	r := NewRegistry(func(name string, down bool) {
		if !down {
			released = append(released, name)
		}
	})

	r.Set(ControlForward, true)
	r.Set(ControlLeft, true)
	r.Set(ControlBackward, false) // already up, must not re-release

	r.ReleaseAll()
	if len(released) != 2 {
		t.Fatalf("release edges: got %v want exactly the two held controls", released)
	}
	for _, name := range []string{ControlForward, ControlLeft} {
		if b := r.Get(name); b.Down {
			t.Fatalf("%s still down after ReleaseAll", name)
		}
	}

	// Second pass finds nothing held.
	released = nil
	r.ReleaseAll()
	if len(released) != 0 {
		t.Fatalf("second ReleaseAll released %v", released)
	}
}
