package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeTimerFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	timer := c.NewTimer(10 * time.Second)

	c.Advance(9 * time.Second)
	select {
	case <-timer.C:
		t.Fatal("timer fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-timer.C:
		if want := epoch.Add(10 * time.Second); !got.Equal(want) {
			t.Errorf("fired at %v, want %v", got, want)
		}
	default:
		t.Fatal("timer did not fire at its deadline")
	}

	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestFakeTimerStop(t *testing.T) {
	c := Fake(epoch)
	timer := c.NewTimer(time.Second)

	if !timer.Stop() {
		t.Error("Stop() = false for an active timer")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after Stop", c.PendingCount())
	}

	c.Advance(time.Minute)
	select {
	case <-timer.C:
		t.Error("stopped timer fired")
	default:
	}
}

func TestFakeTimerNonPositive(t *testing.T) {
	c := Fake(epoch)
	timer := c.NewTimer(0)
	select {
	case <-timer.C:
	default:
		t.Fatal("zero-duration timer did not fire immediately")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-c.NewTimer(5 * time.Second).C
	}()

	c.WaitForTimers(1)
	c.Advance(5 * time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not observe the timer")
	}
}

func TestFakeNow(t *testing.T) {
	c := Fake(epoch)
	c.Advance(time.Hour)
	if got := c.Now(); !got.Equal(epoch.Add(time.Hour)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(time.Hour))
	}
}
