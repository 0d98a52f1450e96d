package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	startFn func() error
	events  *[]string
}

func (s recordingService) Name() string { return s.name }

func (s recordingService) Start(_ context.Context) error {
	if s.startFn != nil {
		if err := s.startFn(); err != nil {
			return err
		}
	}
	*s.events = append(*s.events, "start:"+s.name)
	return nil
}

func (s recordingService) Stop(_ context.Context) error {
	*s.events = append(*s.events, "stop:"+s.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var events []string

	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(recordingService{name: name, events: &events}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m := NewManager()
	if err := m.Register(NoopService{ServiceName: "dup"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "dup"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestManagerStartFailureUnwinds(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var events []string

	boom := errors.New("boom")
	_ = m.Register(recordingService{name: "a", events: &events})
	_ = m.Register(recordingService{name: "b", events: &events, startFn: func() error { return boom }})

	if err := m.Start(ctx); !errors.Is(err, boom) {
		t.Fatalf("Start error = %v, want boom", err)
	}

	want := []string{"start:a", "stop:a"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events = %v, want %v", events, want)
	}

	// A failed start leaves the manager reusable.
	if err := m.Register(NoopService{ServiceName: "c"}); err != nil {
		t.Fatalf("Register after failed start: %v", err)
	}
}
