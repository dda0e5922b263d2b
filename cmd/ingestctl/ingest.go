package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/config"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/dedup"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/logger"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/normalize"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/pipeline"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/store"
)

type ingestCmd struct {
	common
	chunk  int
	strict bool
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "run payload files through the pipeline on the file channel" }
func (*ingestCmd) Usage() string {
	return `ingest -source <source> [-config <path>] [-chunk n] [-strict] <file>...

  Reads each file as a JSON array, a single JSON object or JSON Lines ("-"
  reads stdin), and ingests every payload into the configured store.
  Prints one line per event that was not processed and a summary.
  With -strict the exit status is non-zero when any event failed.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.IntVar(&c.chunk, "chunk", 500, "Payloads submitted per batch")
	f.BoolVar(&c.strict, "strict", false, "Exit with failure if any event failed")
}

func (c *ingestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.source == "" || f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: -source and at least one file are required.")
		return subcommands.ExitUsageError
	}
	if c.chunk < 1 {
		c.chunk = 1
	}
	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	sum, err := c.run(ctx, cfg, f.Args(), os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("total=%d processed=%d ignored=%d failed=%d pending=%d\n",
		sum.total, sum.processed, sum.ignored, sum.failed, sum.pending)
	if c.strict && sum.failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type summary struct {
	total, processed, ignored, failed, pending int
}

func (s *summary) add(out *pipeline.Outcome) {
	s.total++
	switch out.Status {
	case event.StatusProcessed:
		s.processed++
	case event.StatusIgnored:
		s.ignored++
	case event.StatusFailed:
		s.failed++
	default:
		s.pending++
	}
}

func (c *ingestCmd) run(ctx context.Context, cfg *config.Config, files []string, w io.Writer) (*summary, error) {
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stderr"})
	if err != nil {
		return nil, err
	}
	defer func() { _ = log.Sync() }()

	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	seen, err := dedup.OpenSeenStore(ctx, cfg.Dedup)
	if err != nil {
		return nil, err
	}
	defer seen.Close()

	rates := normalize.NewRateBook(pipeline.RateTableFromConfig(cfg))
	stages, err := pipeline.StagesFromConfig(cfg, rates)
	if err != nil {
		return nil, err
	}
	orch := pipeline.NewOrchestrator(stages, dedup.New(seen, st), st, log)
	eng := pipeline.NewEngine(ctx, orch, rates, cfg.Engine, log)
	defer eng.Shutdown()

	sum := &summary{}
	for _, file := range files {
		payloads, err := readPayloadFile(file)
		if err != nil {
			return sum, err
		}
		log.Info("ingesting file", zap.String("file", file), zap.Int("payloads", len(payloads)))
		for start := 0; start < len(payloads); start += c.chunk {
			end := min(start+c.chunk, len(payloads))
			for i, out := range eng.IngestBatch(ctx, c.source, event.ChannelFile, payloads[start:end]) {
				sum.add(out)
				if out.Status != event.StatusProcessed {
					reportOutcome(w, file, start+i+1, out)
				}
			}
		}
	}
	return sum, nil
}

func reportOutcome(w io.Writer, file string, n int, out *pipeline.Outcome) {
	msg := out.Reason
	if out.Error != nil {
		msg = fmt.Sprintf("%s: %s", out.Error.Code, out.Error.Message)
	}
	fmt.Fprintf(w, "%s:%d\t%s\t%s\t%s\n", file, n, out.RawEventID, out.Status, msg)
}
