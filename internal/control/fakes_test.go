package control

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/world"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type sentEvent struct {
	event   string
	payload interface{}
}

// fakeClient is an in-memory world.Client for driving the controllers
// synchronously.
type fakeClient struct {
	mu      sync.Mutex
	pose    world.Pose
	poseErr error
	caps    map[world.Capability]bool
	keys    map[string]bool
	events  []sentEvent
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pose: world.Pose{Orientation: world.Quat{W: 1}},
		keys: make(map[string]bool),
		caps: make(map[world.Capability]bool),
	}
}

func (f *fakeClient) SetInputKey(name string, down bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[name] = down
	return nil
}

func (f *fakeClient) EmbodimentPose() (world.Pose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poseErr != nil {
		return world.Pose{}, f.poseErr
	}
	return f.pose, nil
}

func (f *fakeClient) SendNetworkEvent(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{event: event, payload: payload})
	return nil
}

func (f *fakeClient) AdvanceSimulation(timestampMs int64) error { return nil }

func (f *fakeClient) Supports(c world.Capability) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps[c]
}

func (f *fakeClient) setPose(p world.Pose) {
	f.mu.Lock()
	f.pose = p
	f.mu.Unlock()
}

func (f *fakeClient) setPoseErr(err error) {
	f.mu.Lock()
	f.poseErr = err
	f.mu.Unlock()
}

func (f *fakeClient) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
