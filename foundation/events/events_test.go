package events_test

import (
	"encoding/json"
	"testing"

	"github.com/ardanlabs/p2pledger/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Events(t *testing.T) {
	t.Log("Given the need to push events to registered receivers.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two receivers are registered.", testID)
		{
			evts := events.New()
			a := evts.Acquire("a")
			b := evts.Acquire("b")

			if evts.Acquire("a") != a {
				t.Fatalf("\t%s\tTest %d:\tShould return the same channel for the same id.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould return the same channel for the same id.", success, testID)

			if err := evts.Send("head", map[string]int{"index": 3}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould send the event: %s", failed, testID, err)
			}

			for _, ch := range []chan []byte{a, b} {
				var e events.Event
				if err := json.Unmarshal(<-ch, &e); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould receive a json document: %s", failed, testID, err)
				}
				if e.Kind != "head" || string(e.Data) != `{"index":3}` {
					t.Fatalf("\t%s\tTest %d:\tShould receive the event, got %s %s.", failed, testID, e.Kind, e.Data)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould deliver the event to every receiver.", success, testID)

			if err := evts.Release("a"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould release the receiver: %s", failed, testID, err)
			}
			if _, open := <-a; open {
				t.Fatalf("\t%s\tTest %d:\tShould close the released channel.", failed, testID)
			}
			if err := evts.Release("a"); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould fail to release an unknown id.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould release a receiver once.", success, testID)

			evts.Shutdown()
			if _, open := <-b; open || evts.Len() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould close every channel on shutdown.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould close every channel on shutdown.", success, testID)
		}
	}
}
