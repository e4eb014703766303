package pipeline

import (
	"testing"

	"duetto/internal/models"
)

func TestDedupDropsRepeats(t *testing.T) {
	d, err := NewDedup(1000)
	if err != nil {
		t.Fatalf("NewDedup: %v", err)
	}

	a := sampleAlert()
	if _, ok := d.Process(a); !ok {
		t.Fatal("first pass must go through")
	}
	if _, ok := d.Process(a); ok {
		t.Fatal("second pass must be dropped")
	}

	b := sampleAlert()
	b.ID = "test_2"
	if _, ok := d.Process(b); !ok {
		t.Fatal("different id must go through")
	}
}

func TestPriorityFilterMinimum(t *testing.T) {
	f := NewPriorityFilter(models.PriorityHigh, nil)

	medium := sampleAlert()
	medium.Priority = models.PriorityMedium
	if _, ok := f.Process(medium); ok {
		t.Error("medium must be dropped when minimum is high")
	}

	high := sampleAlert()
	high.Priority = models.PriorityHigh
	if _, ok := f.Process(high); !ok {
		t.Error("high must pass when minimum is high")
	}
}

func TestPriorityFilterIsIdempotent(t *testing.T) {
	f := NewPriorityFilter(models.PriorityMedium, nil)
	a := sampleAlert()
	a.Priority = models.PriorityMedium

	out1, ok1 := f.Process(a)
	out2, ok2 := f.Process(out1)
	if !ok1 || !ok2 {
		t.Fatal("filter dropped a passing alert on repeat")
	}
	if out1.ID != out2.ID || out1.Priority != out2.Priority {
		t.Error("filter changed the alert between runs")
	}
}

func TestPriorityFilterCatalystAllowList(t *testing.T) {
	f := NewPriorityFilter(models.PriorityLow, []string{models.CatalystMergerAcquisition})

	match := sampleAlert()
	match.SetEnrichment("catalysts", []string{models.CatalystMergerAcquisition})
	if _, ok := f.Process(match); !ok {
		t.Error("alert with allowed catalyst must pass")
	}

	other := sampleAlert()
	other.ID = "test_2"
	other.SetEnrichment("catalysts", []string{models.CatalystOfferingDilution})
	if _, ok := f.Process(other); ok {
		t.Error("alert without allowed catalyst must be dropped")
	}

	bare := sampleAlert()
	bare.ID = "test_3"
	if _, ok := f.Process(bare); ok {
		t.Error("unclassified alert must be dropped when an allow-list is set")
	}
}

func TestChainShortCircuits(t *testing.T) {
	dedup, err := NewDedup(10)
	if err != nil {
		t.Fatalf("NewDedup: %v", err)
	}
	chain := NewChain(dedup, NewClassifier(true), NewPriorityFilter(models.PriorityLow, nil))

	a := sampleAlert()
	a.Summary = "Announces merger"
	out, ok := chain.Run(a)
	if !ok {
		t.Fatal("first run must pass")
	}
	if out.Priority != models.PriorityHigh {
		t.Errorf("priority = %s, want high", out.Priority)
	}

	if _, ok := chain.Run(a); ok {
		t.Error("duplicate must be dropped by the first stage")
	}
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }

func (panicky) Process(models.Alert) (models.Alert, bool) { panic("boom") }

func TestChainRecoversPanickingStage(t *testing.T) {
	chain := NewChain(panicky{})
	if _, ok := chain.Run(sampleAlert()); ok {
		t.Error("a panicking stage must count as a drop")
	}
	// And the chain stays usable.
	if _, ok := chain.Run(sampleAlert()); ok {
		t.Error("chain must survive a panic and keep dropping")
	}
}
