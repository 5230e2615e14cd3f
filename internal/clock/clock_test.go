package clock

import (
	"testing"
	"time"
)

func TestSimulated_AfterAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewSimulated(start)

	fired := <-c.After(5 * time.Second)

	if want := start.Add(5 * time.Second); !fired.Equal(want) || !c.Now().Equal(want) {
		t.Errorf("expected clock at %v, got fired=%v now=%v", want, fired, c.Now())
	}

	c.Advance(-time.Second)
	if !c.Now().Equal(start.Add(5 * time.Second)) {
		t.Error("negative advance must not move the clock backwards")
	}
}
