package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresOnAdvance(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	c.AfterFunc(4*time.Second, func() { fired = true })

	c.Advance(3 * time.Second)
	if fired {
		t.Fatal("callback fired before its deadline")
	}

	c.Advance(time.Second)
	if !fired {
		t.Fatal("callback did not fire at its deadline")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFake_CallbacksRunInDeadlineOrder(t *testing.T) {
	c := NewFake(epoch)
	var order []string
	c.AfterFunc(5*time.Second, func() { order = append(order, "restart") })
	c.AfterFunc(4*time.Second, func() { order = append(order, "reset") })

	c.Advance(10 * time.Second)

	if len(order) != 2 || order[0] != "reset" || order[1] != "restart" {
		t.Errorf("order = %v, want [reset restart]", order)
	}
}

func TestFake_Stop(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false on a pending timer")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFake_After(t *testing.T) {
	c := NewFake(epoch)
	ch := c.After(500 * time.Millisecond)

	select {
	case <-ch:
		t.Fatal("After channel fired before Advance")
	default:
	}

	c.Advance(500 * time.Millisecond)

	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(500 * time.Millisecond)) {
			t.Errorf("After fired at %v, want %v", got, epoch.Add(500*time.Millisecond))
		}
	default:
		t.Fatal("After channel did not fire")
	}
}

func TestFake_NowTracksAdvance(t *testing.T) {
	c := NewFake(epoch)
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(epoch.Add(90 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(90*time.Second))
	}
}

func TestFake_AutoAdvance(t *testing.T) {
	c := NewFake(epoch)
	c.SetAutoAdvance(true)

	reset := false
	c.AfterFunc(4*time.Second, func() { reset = true })

	for i := 0; i < 10; i++ {
		<-c.After(500 * time.Millisecond)
	}

	if got := c.Now(); !got.Equal(epoch.Add(5 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(5*time.Second))
	}
	if !reset {
		t.Error("callback due during auto-advanced waits did not fire")
	}
}
