package diffexp

import (
	"errors"
	"math"
	"testing"

	"github.com/haswelllab/rnaseqmisc/counts"
	"github.com/haswelllab/rnaseqmisc/scalefactor"
)

// sixSampleFixture builds 3 treated and 3 untreated samples with equal
// library sizes: an up-regulated gene, a compensating down-regulated gene, a
// flat gene with identical counts everywhere, a block of flat filler so the
// dispersion and scaling estimates have something to chew on, and an all-zero
// gene.
func sixSampleFixture(t *testing.T) (*counts.Matrix, map[string]counts.SampleInfo, []scalefactor.Factor) {
	t.Helper()

	genes := []string{"up", "down", "flat"}
	rows := [][]float64{
		{200, 200, 200, 20, 20, 20},
		{20, 20, 20, 200, 200, 200},
		{50, 50, 50, 50, 50, 50},
	}

	filler := []float64{30, 80, 120, 45, 15, 60, 90, 25, 70, 110}
	for i, v := range filler {
		genes = append(genes, "filler"+string(rune('a'+i)))
		row := make([]float64, 6)
		for j := range row {
			row[j] = v
		}
		rows = append(rows, row)
	}

	genes = append(genes, "zero")
	rows = append(rows, []float64{0, 0, 0, 0, 0, 0})

	samples := []string{"t1", "t2", "t3", "u1", "u2", "u3"}
	m, err := counts.NewMatrix(genes, samples, rows)
	if err != nil {
		t.Fatal(err)
	}

	info := map[string]counts.SampleInfo{
		"t1": {Sample: "t1", Condition: "dex"},
		"t2": {Sample: "t2", Condition: "dex"},
		"t3": {Sample: "t3", Condition: "dex"},
		"u1": {Sample: "u1", Condition: "untreated"},
		"u2": {Sample: "u2", Condition: "untreated"},
		"u3": {Sample: "u3", Condition: "untreated"},
	}

	factors, err := scalefactor.Compute(m)
	if err != nil {
		t.Fatal(err)
	}

	return m, info, factors
}

func TestTestContrast(t *testing.T) {
	m, info, factors := sixSampleFixture(t)

	design, err := NewDesign(m.Samples, info, Contrast{Treatment: "dex", Control: "untreated"}, false)
	if err != nil {
		t.Fatal(err)
	}

	keep := make([]bool, m.NGenes())
	for i := range keep {
		keep[i] = m.Genes[i] != "zero" && m.Genes[i] != "down"
	}

	results, err := Test(m, factors, design, keep, 0.05)
	if err != nil {
		t.Fatal(err)
	}

	byGene := make(map[string]Result)
	for _, r := range results {
		byGene[r.Gene] = r
	}

	// Strong 10-fold change: significant, logFC near log2(10).
	up := byGene["up"]
	if !up.Tested || !up.LogFC.Valid || !up.PValue.Valid {
		t.Fatalf("up gene not tested: %+v", up)
	}
	if want := math.Log2(10); math.Abs(up.LogFC.Float64-want) > 0.05 {
		t.Fatalf("up logFC %v, want about %v", up.LogFC.Float64, want)
	}
	if !up.Significant {
		t.Fatalf("up gene not significant: p=%v fdr=%v", up.PValue.Float64, up.FDR.Float64)
	}

	// Identical replicate counts in both conditions: no effect, no signal.
	flat := byGene["flat"]
	if !flat.Tested {
		t.Fatalf("flat gene not tested: %+v", flat)
	}
	if math.Abs(flat.LogFC.Float64) > 0.01 {
		t.Fatalf("flat logFC %v, want about 0", flat.LogFC.Float64)
	}
	if flat.PValue.Float64 < 0.99 {
		t.Fatalf("flat p-value %v, want about 1", flat.PValue.Float64)
	}
	if flat.Significant {
		t.Fatal("flat gene flagged significant")
	}

	// Excluded gene keeps its row with absent, not zero, fields.
	down := byGene["down"]
	if down.Tested {
		t.Fatal("excluded gene marked tested")
	}
	if down.LogFC.Valid || down.LogCPM.Valid || down.PValue.Valid || down.FDR.Valid {
		t.Fatalf("excluded gene carries values: %+v", down)
	}
	if down.Significant {
		t.Fatal("excluded gene flagged significant")
	}

	// All-zero gene with keep forced true is isolated, not fatal.
	keepAll := make([]bool, m.NGenes())
	for i := range keepAll {
		keepAll[i] = true
	}
	results, err = Test(m, factors, design, keepAll, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Gene != "zero" {
			continue
		}
		if r.Tested || !r.Degenerate {
			t.Fatalf("zero gene should be degenerate, got %+v", r)
		}
		if r.PValue.Valid {
			t.Fatal("degenerate gene carries a p-value")
		}
	}

	// Row order follows the input gene order.
	for i, r := range results {
		if r.Gene != m.Genes[i] {
			t.Fatalf("row %d is %q, want %q", i, r.Gene, m.Genes[i])
		}
	}
}

func TestAdjustBH(t *testing.T) {
	got := adjustBH([]float64{0.01, 0.02, 0.03, 0.5})
	want := []float64{0.04, 0.04, 0.04, 0.5}

	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("adjusted[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// The adjustment must preserve the significance ranking: sorting genes by raw
// p-value sorts them by adjusted p-value too.
func TestAdjustBHMonotone(t *testing.T) {
	pValues := []float64{0.2, 0.001, 0.04, 0.9, 0.0005, 0.04, 0.31}
	adjusted := adjustBH(pValues)

	for i := range pValues {
		for j := range pValues {
			if pValues[i] < pValues[j] && adjusted[i] > adjusted[j] {
				t.Fatalf("raw %v < %v but adjusted %v > %v", pValues[i], pValues[j], adjusted[i], adjusted[j])
			}
		}
		if adjusted[i] < pValues[i] {
			t.Fatalf("adjusted[%d] = %v below raw %v", i, adjusted[i], pValues[i])
		}
		if adjusted[i] > 1 {
			t.Fatalf("adjusted[%d] = %v above 1", i, adjusted[i])
		}
	}
}

func TestNewDesignErrors(t *testing.T) {
	_, info, _ := sixSampleFixture(t)
	samples := []string{"t1", "t2", "t3", "u1", "u2", "u3"}

	for _, tc := range []struct {
		name     string
		contrast Contrast
	}{
		{"selfContrast", Contrast{Treatment: "dex", Control: "dex"}},
		{"absentTreatment", Contrast{Treatment: "missing", Control: "untreated"}},
		{"absentControl", Contrast{Treatment: "dex", Control: "missing"}},
	} {
		if _, err := NewDesign(samples, info, tc.contrast, false); err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		} else if !errors.As(err, &ConfigurationError{}) {
			t.Fatalf("%s: expected a ConfigurationError, got %v", tc.name, err)
		}
	}

	// Batch identical to condition is confounded: not full rank.
	confounded := make(map[string]counts.SampleInfo, len(info))
	for s, rec := range info {
		rec.Batch = rec.Condition
		confounded[s] = rec
	}
	if _, err := NewDesign(samples, confounded, Contrast{Treatment: "dex", Control: "untreated"}, true); err == nil {
		t.Fatal("expected an error for a confounded design")
	}
}

func TestNewDesignBatchColumns(t *testing.T) {
	_, info, _ := sixSampleFixture(t)
	samples := []string{"t1", "t2", "t3", "u1", "u2", "u3"}

	// Alternate batches so batch crosses condition.
	batched := make(map[string]counts.SampleInfo, len(info))
	for i, s := range samples {
		rec := info[s]
		if i%2 == 0 {
			rec.Batch = "lineA"
		} else {
			rec.Batch = "lineB"
		}
		batched[s] = rec
	}

	design, err := NewDesign(samples, batched, Contrast{Treatment: "dex", Control: "untreated"}, true)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := len(design.Columns), 3; got != want {
		t.Fatalf("design has %d columns (%v), want %d", got, design.Columns, want)
	}
	if design.Columns[design.ContrastCol] != "condition:dex" {
		t.Fatalf("contrast column is %q", design.Columns[design.ContrastCol])
	}
}
