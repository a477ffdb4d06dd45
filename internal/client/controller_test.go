package client

import "testing"

func TestControllerDefaultsUnfailed(t *testing.T) {
	c := NewController()
	if c.Failed() {
		t.Error("new controller should not be failed")
	}
	if c.ErrorText() != "" {
		t.Errorf("new controller ErrorText() = %q, want empty", c.ErrorText())
	}
}

func TestControllerSetFailed(t *testing.T) {
	c := NewController()
	c.SetFailed("Network Error: boom")
	if !c.Failed() {
		t.Error("expected Failed() true after SetFailed")
	}
	if c.ErrorText() != "Network Error: boom" {
		t.Errorf("ErrorText() = %q", c.ErrorText())
	}
}

func TestControllerReset(t *testing.T) {
	c := NewController()
	c.SetFailed("oops")
	c.StartCancel()
	c.Reset()

	if c.Failed() || c.ErrorText() != "" || c.IsCanceled() {
		t.Error("Reset did not clear controller state")
	}
}

func TestControllerConnectionWeakReference(t *testing.T) {
	c := NewController()
	if c.GetConnection() != nil {
		t.Fatal("expected nil connection before SetConnection")
	}

	type fakeConn struct{ id int }
	c.SetConnection(&fakeConn{id: 7})

	got, ok := c.GetConnection().(*fakeConn)
	if !ok || got.id != 7 {
		t.Fatalf("GetConnection() = %#v", c.GetConnection())
	}

	c.ClearConnection()
	if c.GetConnection() != nil {
		t.Error("expected nil connection after ClearConnection")
	}
}

func TestControllerNotifyOnCancelFiresOnStartCancel(t *testing.T) {
	c := NewController()
	fired := make(chan struct{}, 1)
	c.NotifyOnCancel(func() { fired <- struct{}{} })

	if c.IsCanceled() {
		t.Fatal("should not be canceled before StartCancel")
	}

	c.StartCancel()

	select {
	case <-fired:
	default:
		t.Error("expected cancel callback to fire synchronously when no Scheduler is bound")
	}

	if !c.IsCanceled() {
		t.Error("expected IsCanceled() true after StartCancel")
	}
}

func TestControllerStartCancelUsesSchedulerWhenBound(t *testing.T) {
	c := NewController()

	var scheduled func()
	sched := schedulerFunc(func(f func()) { scheduled = f })
	c.SetConnection(sched)

	called := false
	c.NotifyOnCancel(func() { called = true })
	c.StartCancel()

	if called {
		t.Fatal("callback should have been handed to the Scheduler, not run inline")
	}
	if scheduled == nil {
		t.Fatal("expected Scheduler.Schedule to be invoked")
	}
	scheduled()
	if !called {
		t.Error("expected callback to run once the scheduled func is invoked")
	}
}

type schedulerFunc func(func())

func (f schedulerFunc) Schedule(cb func()) { f(cb) }
