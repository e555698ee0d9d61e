package acp

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPendingTable_CompleteOnce(t *testing.T) {
	pt := newPendingTable()

	slot, ok := pt.insert(1)
	if !ok {
		t.Fatal("insert should succeed")
	}
	if !pt.complete(1, outcome{result: json.RawMessage(`{}`)}) {
		t.Fatal("complete should find the slot")
	}
	if pt.complete(1, outcome{result: json.RawMessage(`{}`)}) {
		t.Error("second complete for the same id should report false")
	}

	o := <-slot
	if string(o.result) != "{}" || o.err != nil {
		t.Errorf("outcome = %+v", o)
	}
	if pt.size() != 0 {
		t.Errorf("size() = %d, want 0", pt.size())
	}
}

func TestPendingTable_AbandonRemembersID(t *testing.T) {
	pt := newPendingTable()

	pt.insert(5)
	pt.abandon(5, "session/prompt")

	if pt.complete(5, outcome{}) {
		t.Error("abandoned id should not complete")
	}
	method, late := pt.expiredMethod(5)
	if !late || method != "session/prompt" {
		t.Errorf("expiredMethod(5) = (%q, %v), want (session/prompt, true)", method, late)
	}
	if _, late := pt.expiredMethod(6); late {
		t.Error("unknown id should not be reported as late")
	}

	// Abandoning an id that already completed records nothing.
	pt.insert(8)
	pt.complete(8, outcome{})
	pt.abandon(8, "session/new")
	if _, late := pt.expiredMethod(8); late {
		t.Error("completed id should not be remembered as expired")
	}
}

func TestPendingTable_ClearFailsWaiters(t *testing.T) {
	pt := newPendingTable()

	slots := make([]<-chan outcome, 3)
	for i := range slots {
		slots[i], _ = pt.insert(uint64(i + 1))
	}

	if n := pt.clear(); n != 3 {
		t.Errorf("clear() = %d, want 3", n)
	}
	for i, slot := range slots {
		if o := <-slot; !errors.Is(o.err, ErrConnectionClosed) {
			t.Errorf("slot %d err = %v, want ErrConnectionClosed", i, o.err)
		}
	}
	if _, ok := pt.insert(10); ok {
		t.Error("insert after clear should fail")
	}
}
