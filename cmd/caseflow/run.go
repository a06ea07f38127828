package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caseflow-dev/caseflow"
)

var (
	flagDemo  bool
	flagInput string
	flagTrace bool
)

// demoRequest is the canned walkthrough input: a damaged-shipment replacement
// request that exercises the full graph, clarification answer included so the
// ASK/WAIT pair is skipped.
var demoRequest = caseflow.Request{
	CustomerName:        "Aisha Jain",
	Email:               "aisha.jain@example.com",
	Query:               "My package arrived damaged and I need a replacement for order #A123 as soon as possible.",
	Priority:            "high",
	TicketID:            "TCK-1001",
	ClarificationAnswer: "Please ship the replacement to the address on file.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one request through the stage graph",
	Long: `Run executes a single support request to a terminal status and prints the
terminal payload (final state, audit log, status) as JSON on stdout.

The request comes from --input (a JSON file, "-" for stdin) or --demo.`,
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().BoolVar(&flagDemo, "demo", false, "run the built-in demo request")
	runCmd.Flags().StringVarP(&flagInput, "input", "i", "", "JSON file with the request, or - for stdin")
	runCmd.Flags().BoolVar(&flagTrace, "trace", false, "emit one span per stage to the global tracer")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	req, err := resolveRequest()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	providers, closeProviders, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	defer closeProviders()

	registry, err := caseflow.NewRegistry(cfg, providers)
	if err != nil {
		return err
	}

	mw := []caseflow.StageMiddleware{caseflow.LoggingMiddleware(caseflow.NewLogrusLogger(logger))}
	if flagTrace {
		mw = append(mw, caseflow.TracingMiddleware(nil))
	}
	orch := caseflow.New(registry,
		caseflow.WithLogger(caseflow.NewLogrusLogger(logger)),
		caseflow.WithMiddleware(mw...),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := orch.Run(ctx, req)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if result.Status.Aborted() {
		return fmt.Errorf("run aborted: %w", result.Err)
	}
	return nil
}

func resolveRequest() (caseflow.Request, error) {
	if flagDemo {
		return demoRequest, nil
	}
	if flagInput == "" {
		return caseflow.Request{}, fmt.Errorf("either --demo or --input is required")
	}

	var raw []byte
	var err error
	if flagInput == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(flagInput)
	}
	if err != nil {
		return caseflow.Request{}, fmt.Errorf("read request: %w", err)
	}

	var req caseflow.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return caseflow.Request{}, fmt.Errorf("parse request: %w", err)
	}
	return req, nil
}
