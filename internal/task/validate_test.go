package task

import (
	"testing"

	"github.com/taskforge-ai/taskforge/pkg/cerr"
)

func validAtomic() *AtomicTask {
	return &AtomicTask{
		ID:                 "t1",
		Title:              "write the handler",
		Priority:           PriorityMedium,
		Type:               TypeDevelopment,
		EstimatedHours:     0.1,
		AcceptanceCriteria: []string{"handler returns 200"},
	}
}

func TestValidateAtomicAcceptsValidTask(t *testing.T) {
	if err := validAtomic().ValidateAtomic(); err != nil {
		t.Fatalf("expected valid task, got %v", err)
	}
}

func TestValidateAtomicHoursRange(t *testing.T) {
	cases := []struct {
		hours float64
		ok    bool
	}{
		{0.08, true},
		{0.17, true},
		{0.12, true},
		{0.07, false},
		{0.18, false},
		{0, false},
		{5, false},
	}
	for _, tc := range cases {
		tk := validAtomic()
		tk.EstimatedHours = tc.hours
		err := tk.ValidateAtomic()
		if tc.ok && err != nil {
			t.Errorf("hours %.2f should pass, got %v", tc.hours, err)
		}
		if !tc.ok {
			if !cerr.IsCode(err, cerr.OutOfRange) {
				t.Errorf("hours %.2f should be OutOfRange, got %v", tc.hours, err)
			}
		}
	}
}

func TestValidateAtomicExactlyOneCriterion(t *testing.T) {
	tk := validAtomic()
	tk.AcceptanceCriteria = nil
	if err := tk.ValidateAtomic(); !cerr.IsCode(err, cerr.InvalidArgument) {
		t.Errorf("zero criteria should fail, got %v", err)
	}

	tk.AcceptanceCriteria = []string{"a", "b"}
	if err := tk.ValidateAtomic(); !cerr.IsCode(err, cerr.InvalidArgument) {
		t.Errorf("two criteria should fail, got %v", err)
	}
}

func TestValidateAtomicRequiredFields(t *testing.T) {
	mutations := map[string]func(*AtomicTask){
		"id":       func(tk *AtomicTask) { tk.ID = "" },
		"title":    func(tk *AtomicTask) { tk.Title = "" },
		"type":     func(tk *AtomicTask) { tk.Type = "deployment" },
		"priority": func(tk *AtomicTask) { tk.Priority = "urgent" },
	}
	for name, mutate := range mutations {
		tk := validAtomic()
		mutate(tk)
		if err := tk.ValidateAtomic(); err == nil {
			t.Errorf("invalid %s should fail validation", name)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	if !PriorityLow.LessImportant(PriorityMedium) {
		t.Error("low should rank below medium")
	}
	if PriorityCritical.LessImportant(PriorityHigh) {
		t.Error("critical must not rank below high")
	}
	if PriorityMedium.LessImportant(PriorityMedium) {
		t.Error("equal priorities are not less important")
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusInProgress.Terminal() {
		t.Error("pending and in-progress are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
}
