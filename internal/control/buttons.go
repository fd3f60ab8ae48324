// Package control turns navigation intents into simulated input for the
// remote world: a named-button registry with single-frame edge detection, a
// tick-driven navigation controller, a random-walk scheduler and the one-shot
// motion actions (jump, crouch).
package control

import "sync"

// Canonical control names. The remote simulation interprets these the same
// way it would a local keyboard.
const (
	ControlForward  = "keyW"
	ControlBackward = "keyS"
	ControlLeft     = "keyA"
	ControlRight    = "keyD"
	ControlRun      = "shiftLeft"
	ControlJump     = "space"
	ControlCrouch   = "keyC"
)

// Button is the three-flag state of one named control. Pressed and Released
// are edge flags: they survive until the next frame clear, regardless of how
// many ticks the control stays down.
type Button struct {
	Down     bool
	Pressed  bool
	Released bool
}

// KeySink receives down-state changes. The registry only forwards genuine
// edges, so the sink never sees a redundant write.
type KeySink func(name string, down bool)

// Registry holds every named control in one map so the frame reset and
// teardown can iterate them generically.
type Registry struct {
	mu      sync.Mutex
	buttons map[string]*Button
	sink    KeySink
}

func NewRegistry(sink KeySink) *Registry {
	return &Registry{
		buttons: make(map[string]*Button),
		sink:    sink,
	}
}

// Set writes the down state for a control, creating it on first use.
// Up->down sets Pressed, down->up sets Released; a write that does not change
// Down is a no-op and is not forwarded to the sink.
func (r *Registry) Set(name string, down bool) {
	r.mu.Lock()
	b := r.buttons[name]
	if b == nil {
		b = &Button{}
		r.buttons[name] = b
	}
	if b.Down == down {
		r.mu.Unlock()
		return
	}
	b.Down = down
	if down {
		b.Pressed = true
	} else {
		b.Released = true
	}
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink(name, down)
	}
}

// Get returns a copy of the control's state. Unknown controls read as up.
func (r *Registry) Get(name string) Button {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.buttons[name]; b != nil {
		return *b
	}
	return Button{}
}

// ClearFrame resets the edge flags on every control. The simulation clock
// calls this exactly once per logical frame.
func (r *Registry) ClearFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.buttons {
		b.Pressed = false
		b.Released = false
	}
}

// ReleaseAll drives every held control up, emitting release edges through
// the sink. Teardown uses this so no key stays latched across sessions.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	var held []string
	for name, b := range r.buttons {
		if b.Down {
			held = append(held, name)
		}
	}
	r.mu.Unlock()
	for _, name := range held {
		r.Set(name, false)
	}
}
