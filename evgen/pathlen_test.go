package evgen

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathLengthTable_RecordFoldsRanges(t *testing.T) {
	table := NewPathLengthTable()
	table.Record("vDet", 10)
	table.Record("vDet", 4)
	table.Record("vDet", 25)

	r := table.Lengths["vDet"]
	if r.Min != 4 || r.Max != 25 {
		t.Errorf("range = [%g,%g], want [4,25]", r.Min, r.Max)
	}
	if table.Max("vDet") != 25 {
		t.Errorf("Max = %g, want 25", table.Max("vDet"))
	}
	if table.Max("unseen") != 0 {
		t.Errorf("Max of unseen volume = %g, want 0", table.Max("unseen"))
	}
}

func TestPathLengthTable_SafetyFactor(t *testing.T) {
	table := NewPathLengthTable()
	table.Record("v", 100)

	table.ApplySafetyFactor(0) // ignored
	if table.Max("v") != 100 {
		t.Errorf("Max after factor 0 = %g, want unchanged", table.Max("v"))
	}

	table.ApplySafetyFactor(1.2)
	if math.Abs(table.Max("v")-120) > 1e-12 {
		t.Errorf("Max after factor 1.2 = %g, want 120", table.Max("v"))
	}
}

func TestPathLengthTable_SaveLoadRoundTrip(t *testing.T) {
	table := NewPathLengthTable()
	table.Record("vWorld", 412.75)
	table.Record("vWorld", 9.5)
	table.Record("vDet", 103.25)

	path := filepath.Join(t.TempDir(), "maxpath.yaml")
	if err := table.Save(path, ""); err != nil {
		t.Fatalf("Save error = %v", err)
	}

	loaded, err := LoadPathLengthTable(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	for vol, want := range table.Lengths {
		got := loaded.Lengths[vol]
		if math.Abs(got.Min-want.Min) > 1e-9 || math.Abs(got.Max-want.Max) > 1e-9 {
			t.Errorf("volume %q round-tripped to [%g,%g], want [%g,%g]",
				vol, got.Min, got.Max, want.Min, want.Max)
		}
	}
}

func TestPathLengthTable_SaveAppendsAuditComment(t *testing.T) {
	table := NewPathLengthTable()
	table.Record("v", 1)

	path := filepath.Join(t.TempDir(), "maxpath.yaml")
	audit := "   FluxType:     histogram\n   TopVolume:    vDet"
	if err := table.Save(path, audit); err != nil {
		t.Fatalf("Save error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "# this file is only relevant for a setup compatible with:") {
		t.Error("audit header line missing")
	}
	if !strings.Contains(text, "#   FluxType:     histogram") {
		t.Error("audit content lines should be commented")
	}

	// the trailing comments must not break reloading
	if _, err := LoadPathLengthTable(path); err != nil {
		t.Errorf("reload with audit comments failed: %v", err)
	}
}
