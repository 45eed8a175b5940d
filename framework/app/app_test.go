package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeModule struct {
	name    string
	initErr error
	runErr  error
	events  *[]string
}

func (m *fakeModule) OnInit(ctx context.Context) error {
	*m.events = append(*m.events, m.name+".init")
	return m.initErr
}

func (m *fakeModule) Run(ctx context.Context) error {
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return nil
}

func (m *fakeModule) Destroy() {
	*m.events = append(*m.events, m.name+".destroy")
}

func (m *fakeModule) Name() string { return m.name }

func TestRunStop(t *testing.T) {
	var events []string
	a := New()
	done := make(chan error, 1)
	go func() {
		done <- a.Run(context.Background(), &fakeModule{name: "a", events: &events}, &fakeModule{name: "b", events: &events})
	}()
	for a.GetState() != AppStateRun {
		time.Sleep(time.Millisecond)
	}
	a.Stop()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.init", "b.init", "b.destroy", "a.destroy"}, events); diff != "" {
		t.Fatal(diff)
	}
	if a.GetState() != AppStateNone {
		t.Fatalf("state %d", a.GetState())
	}
}

func TestInitFailure(t *testing.T) {
	var events []string
	boom := errors.New("boom")
	err := New().Run(context.Background(),
		&fakeModule{name: "a", events: &events},
		&fakeModule{name: "b", initErr: boom, events: &events},
		&fakeModule{name: "c", events: &events},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if diff := cmp.Diff([]string{"a.init", "b.init", "a.destroy"}, events); diff != "" {
		t.Fatal(diff)
	}
}

func TestRunErrorStopsApp(t *testing.T) {
	var events []string
	boom := errors.New("listen failed")
	err := New().Run(context.Background(),
		&fakeModule{name: "a", events: &events},
		&fakeModule{name: "rpc", runErr: boom, events: &events},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if diff := cmp.Diff([]string{"a.init", "rpc.init", "rpc.destroy", "a.destroy"}, events); diff != "" {
		t.Fatal(diff)
	}
}

func TestContextDone(t *testing.T) {
	var events []string
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := New().Run(ctx, &fakeModule{name: "a", events: &events}); err != nil {
		t.Fatal(err)
	}
}
