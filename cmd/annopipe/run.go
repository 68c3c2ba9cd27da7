package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"annopipe/internal/pipeline"
)

var (
	runDomain   string
	runFile     string
	runDeadline int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "annotate one piece of text and print the resulting entities as JSON",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runDomain, "domain", "d", "", "domain tag (medical, legal, scientific, ...)")
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "read text from this file instead of stdin")
	runCmd.Flags().Int64Var(&runDeadline, "deadline-ms", 0, "override the configured request deadline")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}

	text, err := readRunInput()
	if err != nil {
		return err
	}

	pcfg := pipeline.FromConfig(a.cfg, runDomain)
	if runDeadline > 0 {
		pcfg = pcfg.Merge(&pipeline.PipelineConfig{DeadlineMS: runDeadline})
	}

	requestID := uuid.NewString()
	ctx := context.Background()

	result, err := a.orchestrator.Process(ctx, requestID, text, pcfg)
	if err != nil {
		return fmt.Errorf("processing request: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readRunInput() (string, error) {
	if runFile != "" {
		data, err := os.ReadFile(runFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", runFile, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}
