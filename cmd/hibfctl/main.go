// Command hibfctl builds a HIBF index from whitespace-delimited k-mer files
// (one file per user bin) and answers membership queries against it. It
// mirrors the teacher's contrib/memtest demo programs: a small, throwaway
// CLI exercising the library rather than a supported tool.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"

	"github.com/seqlab/hibf"
)

func main() {
	buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
	buildThreads := buildCmd.Int("threads", 1, "worker goroutines")
	buildFPR := buildCmd.Float64("fpr", 0.05, "maximum false positive rate")

	queryCmd := flag.NewFlagSet("query", flag.ExitOnError)
	queryThreshold := queryCmd.Uint64("threshold", 1, "minimum shared k-mer count")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: hibfctl build <files...> | query <files...> <query-file>")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "build":
		buildCmd.Parse(os.Args[2:])
		runBuild(buildCmd.Args(), *buildThreads, *buildFPR)
	case "query":
		queryCmd.Parse(os.Args[2:])
		runQuery(queryCmd.Args(), *queryThreshold)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runBuild(files []string, threads int, fprTarget float64) {
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "build: no input files given")
		os.Exit(2)
	}

	cfg := hibf.Config{
		InputFn:          fileInputFn(files),
		NumberOfUserBins: uint64(len(files)),
		Threads:          threads,
		MaximumFPR:       fprTarget,
	}
	idx, err := hibf.Build(&cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build failed:", err)
		os.Exit(1)
	}
	for _, w := range cfg.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	fmt.Println(idx.Describe())
}

func runQuery(args []string, threshold uint64) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "query: need <files...> <query-file>")
		os.Exit(2)
	}
	files, queryFile := args[:len(args)-1], args[len(args)-1]

	cfg := hibf.Config{
		InputFn:          fileInputFn(files),
		NumberOfUserBins: uint64(len(files)),
	}
	idx, err := hibf.Build(&cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build failed:", err)
		os.Exit(1)
	}

	values, err := readHashes(queryFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reading query file:", err)
		os.Exit(1)
	}

	agent := idx.MembershipAgent()
	hits := agent.MembershipFor(values, threshold)
	agent.SortResults()
	for _, u := range hits {
		fmt.Printf("%s\t%d\n", files[u], u)
	}
	fmt.Fprintf(os.Stderr, "%s k-mers queried against %d user bins\n", humanize.Comma(int64(len(values))), len(files))
}

func fileInputFn(files []string) hibf.InputFn {
	return func(userBinID uint64, sink hibf.InsertSink) error {
		values, err := readHashes(files[userBinID])
		if err != nil {
			return err
		}
		for _, v := range values {
			sink.Insert(v)
		}
		return nil
	}
}

// readHashes hashes each whitespace-separated token of path with xxhash,
// the same hash family the teacher's cache benchmarks use for string
// keys.
func readHashes(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []uint64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		for _, tok := range strings.Fields(scanner.Text()) {
			values = append(values, xxhash.Sum64String(tok))
		}
	}
	return values, scanner.Err()
}
