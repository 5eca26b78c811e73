package abundance

import (
	"errors"
	"testing"

	"github.com/haswelllab/rnaseqmisc/counts"
)

func twoGeneMatrix(t *testing.T) *counts.Matrix {
	t.Helper()

	m, err := counts.NewMatrix(
		[]string{"geneA", "geneB"},
		[]string{"s1", "s2", "s3", "s4"},
		[][]float64{
			{10, 12, 11, 9},
			{0, 0, 1, 0},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	return m
}

func TestFlagsMinimumCountRule(t *testing.T) {
	m := twoGeneMatrix(t)

	groups := map[string]string{
		"s1": "treated", "s2": "treated",
		"s3": "untreated", "s4": "untreated",
	}

	flags, err := Flags(m, groups, 10)
	if err != nil {
		t.Fatal(err)
	}

	if !flags[0] {
		t.Fatal("geneA should pass the abundance filter")
	}
	if flags[1] {
		t.Fatal("geneB should not pass the abundance filter")
	}
}

// Shrinking any group can only hold or grow the number of genes retained,
// because the required number of passing samples k can only fall.
func TestFlagsMonotoneInGroupSize(t *testing.T) {
	m := twoGeneMatrix(t)

	balanced := map[string]string{
		"s1": "a", "s2": "a", "s3": "b", "s4": "b",
	}
	skewed := map[string]string{
		"s1": "a", "s2": "b", "s3": "b", "s4": "b",
	}

	kept := func(groups map[string]string) int {
		flags, err := Flags(m, groups, 10)
		if err != nil {
			t.Fatal(err)
		}
		n := 0
		for _, ok := range flags {
			if ok {
				n++
			}
		}
		return n
	}

	if balancedKept, skewedKept := kept(balanced), kept(skewed); skewedKept < balancedKept {
		t.Fatalf("shrinking a group reduced retained genes: %d -> %d", balancedKept, skewedKept)
	}
}

// A single-level covariate degrades k to the total sample count.
func TestFlagsSingleLevelCovariate(t *testing.T) {
	m := twoGeneMatrix(t)

	oneLevel := map[string]string{
		"s1": "only", "s2": "only", "s3": "only", "s4": "only",
	}

	flags, err := Flags(m, oneLevel, 10)
	if err != nil {
		t.Fatal(err)
	}

	// geneA clears the cutoff in all four samples; geneB in none.
	if !flags[0] || flags[1] {
		t.Fatalf("got flags %v, want [true false]", flags)
	}
}

func TestFlagsConfigurationErrors(t *testing.T) {
	m := twoGeneMatrix(t)

	// Sample without a group level.
	missing := map[string]string{"s1": "a", "s2": "a", "s3": "b"}
	if _, err := Flags(m, missing, 10); err == nil {
		t.Fatal("expected an error for a sample without a group")
	} else if !errors.As(err, &ConfigurationError{}) {
		t.Fatalf("expected a ConfigurationError, got %v", err)
	}

	empty, err := counts.NewMatrix(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Flags(empty, map[string]string{}, 10); err == nil {
		t.Fatal("expected an error for zero samples")
	}
}

func TestKeepSubsets(t *testing.T) {
	m := twoGeneMatrix(t)

	kept, err := Keep(m, []bool{true, false})
	if err != nil {
		t.Fatal(err)
	}

	if got, want := kept.NGenes(), 1; got != want {
		t.Fatalf("kept %d genes, want %d", got, want)
	}
	if kept.Genes[0] != "geneA" {
		t.Fatalf("kept %q, want geneA", kept.Genes[0])
	}
}
