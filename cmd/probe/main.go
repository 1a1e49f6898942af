// Command probe sniffs one data file and prints what mvrec makes of it.
//
// By default it prints a JSON document holding the sniffed records format
// and the inferred schema. With -report it prints a per-column uniqueness
// report over the sampled rows instead, which is handy for picking keys
// before a move.
//
// Inputs may be bare paths or file://, s3:// and gs:// URLs. Hints given
// with -hints override what the sniffer detects, e.g.
//
//	probe -url data.csv.gz -hints '{"header-row": true, "dateformat": "MM/DD/YY"}'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bluelabsio/records-mover-sub001/internal/config"
	"github.com/bluelabsio/records-mover-sub001/internal/location"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/probe"
	"github.com/bluelabsio/records-mover-sub001/internal/records"
)

func main() {
	var (
		flagURL     = flag.String("url", "", "URL or path of the data file")
		flagHints   = flag.String("hints", "", "JSON or YAML mapping of hints that override sniffing")
		flagReport  = flag.Bool("report", false, "Print uniqueness report (suppresses JSON output)")
		flagRows    = flag.Int("rows", 0, "Rows sampled for -report; 0 means max inference rows")
		flagInfer   = flag.Int("infer-rows", records.DefaultProcessingInstructions().MaxInferenceRows, "Rows read for schema inference")
		flagTimeout = flag.Duration("timeout", 60*time.Second, "Give up after this long")
		flagVerbose = flag.Bool("v", false, "Verbose logging on stderr")
	)
	flag.Parse()

	if strings.TrimSpace(*flagURL) == "" {
		fmt.Fprintln(os.Stderr, "missing -url")
		flag.Usage()
		os.Exit(2)
	}
	if err := logging.Initialize(false, *flagVerbose); err != nil {
		fatalf("logging: %v", err)
	}
	defer logging.Sync()

	h, err := config.ParseHints(*flagHints)
	if err != nil {
		fatalf("hints: %v", err)
	}
	pi := records.DefaultProcessingInstructions()
	pi.MaxInferenceRows = *flagInfer
	pi.Logger = logging.Logger

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	url := probe.NormalizeURL(*flagURL)
	loc := location.NewResolver(logging.Logger)
	release, err := location.EnsureBackends(ctx, loc, location.S3Config{Region: os.Getenv("AWS_REGION")}, url)
	if err != nil {
		fatalf("storage: %v", err)
	}
	defer release()

	res, err := probe.Probe(ctx, loc, url, probe.Options{
		Hints:      h,
		PI:         pi,
		Uniqueness: *flagReport,
		MaxRows:    *flagRows,
		Logger:     logging.Logger,
	})
	if err != nil {
		fatalf("probe: %v", err)
	}

	if *flagReport {
		fmt.Fprintln(os.Stdout, probe.FormatUniquenessReport(res.Uniqueness))
		return
	}
	if err := res.WriteJSON(os.Stdout); err != nil {
		fatalf("write: %v", err)
	}
}

func fatalf(format string, args ...any) {
	logging.Sync()
	fmt.Fprintf(os.Stderr, "probe: "+format+"\n", args...)
	os.Exit(1)
}
