package event

import "testing"

type ping struct{ N int }
type pong struct{ N int }

func TestBusDeliversNextTickInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(p ping) { got = append(got, "ping") })
	Subscribe(b, func(p pong) { got = append(got, "pong") })

	Emit(b, ping{1})
	Emit(b, pong{2})
	Emit(b, ping{3})

	b.DispatchAll()
	if len(got) != 0 {
		t.Fatalf("events delivered before swap: %v", got)
	}

	b.SwapBuffers()
	b.DispatchAll()
	want := []string{"ping", "pong", "ping"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	b.SwapBuffers()
	b.DispatchAll()
	if len(got) != 3 {
		t.Errorf("events redelivered after second swap: %v", got)
	}
}

func TestBusEmitDuringDispatchWaits(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, func(p ping) {
		calls++
		if p.N < 3 {
			Emit(b, ping{p.N + 1})
		}
	})
	Emit(b, ping{1})
	for i := 0; i < 5; i++ {
		b.SwapBuffers()
		b.DispatchAll()
	}
	if calls != 3 {
		t.Errorf("expected 3 chained deliveries, got %d", calls)
	}
}
