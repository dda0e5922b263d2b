package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/config"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
	"github.com/gyaneshwarpardhi/ledgerflow/internal/validate"
)

type validateCmd struct {
	common
	quiet bool
}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "check payload files without ingesting them" }
func (*validateCmd) Usage() string {
	return `validate -source <source> [-config <path>] [-q] <file>...

  Runs the validation stage on every payload and prints its errors and
  warnings. Nothing is written to the store. The exit status is non-zero
  when any payload has an error.
`
}

func (c *validateCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.BoolVar(&c.quiet, "q", false, "Only print errors, not warnings")
}

func (c *validateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.source == "" || f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: -source and at least one file are required.")
		return subcommands.ExitUsageError
	}
	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	v := newValidator(cfg)
	bad := 0
	for _, file := range f.Args() {
		payloads, err := readPayloadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		bad += c.check(os.Stdout, v, file, payloads)
	}
	if bad > 0 {
		fmt.Fprintf(os.Stdout, "%d payload(s) invalid\n", bad)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func newValidator(cfg *config.Config) *validate.Validator {
	return validate.New(validate.Options{
		Currencies:   cfg.Pipeline.Currencies,
		KnownSources: cfg.Pipeline.KnownSources,
	})
}

// check prints the issues of each payload and returns how many were invalid.
func (c *validateCmd) check(w io.Writer, v *validate.Validator, file string, payloads []map[string]interface{}) int {
	bad := 0
	for i, p := range payloads {
		raw := event.NewRawEvent(c.source, event.ChannelFile, p)
		_, warns, err := v.Validate(raw)
		if !c.quiet {
			for _, is := range warns {
				fmt.Fprintf(w, "%s:%d\t%s\t%s\n", file, i+1, is.Severity, is)
			}
		}
		var verrs validate.ValidationErrors
		if errors.As(err, &verrs) {
			bad++
			for _, is := range verrs {
				fmt.Fprintf(w, "%s:%d\t%s\t%s\n", file, i+1, is.Severity, is)
			}
		}
	}
	return bad
}
