// rnaseq-de runs the bulk RNA-seq differential-expression pipeline end to
// end: load a gene-by-sample count table and its sample sheet, map gene
// identifiers to symbols, filter lowly expressed genes, compute TMM scaling
// factors, ordinate the samples, test a condition contrast with a
// negative-binomial GLM, and write the result table plus the standard plots.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/haswelllab/rnaseqmisc"
	"github.com/haswelllab/rnaseqmisc/abundance"
	_ "github.com/haswelllab/rnaseqmisc/compileinfoprint"
	"github.com/haswelllab/rnaseqmisc/counts"
	"github.com/haswelllab/rnaseqmisc/diffexp"
	"github.com/haswelllab/rnaseqmisc/mds"
	"github.com/haswelllab/rnaseqmisc/report"
	"github.com/haswelllab/rnaseqmisc/scalefactor"
)

func main() {
	var (
		countsFile   string
		samplesFile  string
		symbolsFile  string
		contrastSpec string
		minCount     float64
		fdr          float64
		useBatch     bool
		topN         int
		outDir       string
	)

	flag.StringVar(&countsFile, "counts", "", "Delimited gene-by-sample count table. First column holds gene identifiers; remaining headers name samples. May be gzipped.")
	flag.StringVar(&samplesFile, "samples", "", "Sample sheet with columns sample, condition, and optionally batch.")
	flag.StringVar(&symbolsFile, "symbols", "", "Optional gene_id/symbol table. Duplicate symbols are collapsed by summing counts.")
	flag.StringVar(&contrastSpec, "contrast", "", "Condition contrast as treatment/control, e.g. dex/untreated.")
	flag.Float64Var(&minCount, "mincount", 10, "Minimum read count (at the median library size) a gene needs in at least min-group-size samples to be kept.")
	flag.Float64Var(&fdr, "fdr", 0.05, "FDR threshold below which a gene is flagged significant.")
	flag.BoolVar(&useBatch, "batch", true, "Adjust for the batch column of the sample sheet, if it has more than one level.")
	flag.IntVar(&topN, "top", 20, "Number of top genes to print.")
	flag.StringVar(&outDir, "out", ".", "Output directory for the result table and plots.")
	flag.Parse()

	if countsFile == "" || samplesFile == "" || contrastSpec == "" {
		flag.PrintDefaults()
		return
	}

	contrast, err := parseContrast(contrastSpec)
	if err != nil {
		log.Fatalln(err)
	}

	if err := run(countsFile, samplesFile, symbolsFile, contrast, minCount, fdr, useBatch, topN, outDir); err != nil {
		log.Fatalln(err)
	}
}

func run(countsFile, samplesFile, symbolsFile string, contrast diffexp.Contrast, minCount, fdr float64, useBatch bool, topN int, outDir string) error {
	matrix, err := readCounts(rnaseqmisc.ExpandHome(countsFile))
	if err != nil {
		return err
	}
	log.Println("Loaded", matrix.NGenes(), "genes across", matrix.NSamples(), "samples")

	info, err := readSampleSheet(rnaseqmisc.ExpandHome(samplesFile))
	if err != nil {
		return err
	}

	joined, err := counts.JoinSamples(matrix, info)
	if err != nil {
		return err
	}
	log.Println("Joined sample metadata for", len(joined), "samples")

	if symbolsFile != "" {
		symbols, err := readSymbols(rnaseqmisc.ExpandHome(symbolsFile))
		if err != nil {
			return err
		}

		before := matrix.NGenes()
		matrix = counts.MapSymbols(matrix, symbols)
		log.Println("Mapped identifiers to symbols:", before, "rows collapsed to", matrix.NGenes())
	}

	condition := counts.ConditionBySample(joined)

	keep, err := abundance.Flags(matrix, condition, minCount)
	if err != nil {
		return err
	}

	kept := 0
	for _, ok := range keep {
		if ok {
			kept++
		}
	}
	mean, sd := abundance.LibSizeSummary(matrix)
	log.Printf("Abundance filter kept %d of %d genes (library size %.0f ± %.0f reads)\n", kept, matrix.NGenes(), mean, sd)

	abundant, err := abundance.Keep(matrix, keep)
	if err != nil {
		return err
	}

	factors, err := scalefactor.Compute(abundant)
	if err != nil {
		return err
	}
	for _, f := range factors {
		log.Printf("Sample %s: library %.0f reads, scaling factor %.4f\n", f.Sample, f.LibSize, f.Factor)
	}

	logCPM, err := scalefactor.LogCPM(abundant, factors)
	if err != nil {
		return err
	}

	fmt.Println("logCPM distribution after filtering:")
	if err := report.LogCPMHistogram(os.Stdout, logCPM); err != nil {
		return err
	}

	projection, err := mds.Reduce(logCPM, 2, 0)
	if err != nil {
		return err
	}
	log.Printf("MDS: dim 1 explains %.0f%%, dim 2 explains %.0f%%\n", 100*projection.Explained[0], 100*projection.Explained[1])

	design, err := diffexp.NewDesign(matrix.Samples, joined, contrast, useBatch)
	if err != nil {
		return err
	}

	// Scaling is per sample, not per gene, so the factors computed on the
	// abundant genes apply to the full matrix unchanged.
	results, err := diffexp.Test(matrix, factors, design, keep, fdr)
	if err != nil {
		return err
	}

	significant := 0
	for _, r := range results {
		if r.Significant {
			significant++
		}
	}
	log.Println(significant, "genes significant at FDR <", fdr)

	top := report.TopTable(results, topN, report.ByPValue, false)
	for _, r := range top {
		if !r.PValue.Valid {
			break
		}
		fmt.Printf("%s\tlogFC=%.2f\tlogCPM=%.2f\tp=%.2e\tFDR=%.2e\n", r.Gene, r.LogFC.Float64, r.LogCPM.Float64, r.PValue.Float64, r.FDR.Float64)
	}

	return writeOutputs(outDir, results, factors, projection, condition)
}

func parseContrast(spec string) (diffexp.Contrast, error) {
	parts := strings.Split(spec, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return diffexp.Contrast{}, fmt.Errorf("contrast %q must be treatment/control", spec)
	}

	return diffexp.Contrast{Treatment: parts[0], Control: parts[1]}, nil
}

func readCounts(path string) (*counts.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := rnaseqmisc.MaybeDecompressReadCloserFromFile(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return counts.ReadMatrix(r, delimiterFor(path))
}

func readSampleSheet(path string) ([]counts.SampleInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return counts.ReadSampleInfo(f, delimiterFor(path))
}

func readSymbols(path string) ([]counts.SymbolEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return counts.ReadSymbols(f, delimiterFor(path))
}

// delimiterFor sniffs the delimiter from the first bytes of the (possibly
// compressed) file. Falls back to comma if the file can't be read.
func delimiterFor(path string) rune {
	f, err := os.Open(path)
	if err != nil {
		return ','
	}
	defer f.Close()

	r, err := rnaseqmisc.MaybeDecompressReadCloserFromFile(f)
	if err != nil {
		return ','
	}
	defer r.Close()

	return rnaseqmisc.DetermineDelimiter(r)
}

func writeOutputs(outDir string, results []diffexp.Result, factors []scalefactor.Factor, projection *mds.Projection, condition map[string]string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	resultsPath := filepath.Join(outDir, "differential_expression.tsv")
	rf, err := os.Create(resultsPath)
	if err != nil {
		return err
	}
	defer rf.Close()
	if err := report.WriteResults(rf, results); err != nil {
		return err
	}
	log.Println("Wrote", resultsPath)

	plots := []struct {
		name   string
		render func(f *os.File) error
	}{
		{"library_sizes.png", func(f *os.File) error { return report.LibrarySizeBars(f, factors) }},
		{"ma_plot.png", func(f *os.File) error { return report.MAPlot(f, results) }},
		{"volcano_plot.png", func(f *os.File) error { return report.VolcanoPlot(f, results) }},
		{"mds_plot.png", func(f *os.File) error { return report.MDSPlot(f, projection, condition) }},
	}

	for _, p := range plots {
		path := filepath.Join(outDir, p.name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}

		if err := p.render(f); err != nil {
			f.Close()
			return fmt.Errorf("rendering %s: %v", p.name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Println("Wrote", path)
	}

	return nil
}
