package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/arbiterhq/arbiter/pkg/config"
	"github.com/arbiterhq/arbiter/pkg/contracts"
	"github.com/arbiterhq/arbiter/pkg/gate"
)

// runGateCmd implements `arbiter gate`.
//
// Re-evaluates the quality gate over a previously saved result batch (see
// `arbiter run --results-out`), optionally against a different requirements
// profile. Useful for re-gating the same batch under stricter thresholds
// without re-executing anything.
//
// Exit codes:
//
//	0 = gate passed
//	1 = gate failed
//	2 = runtime error
func runGateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("gate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		resultsPath string
		profileName string
		jsonOutput  bool
	)

	cmd.StringVar(&resultsPath, "results", "", "Path to a result batch JSON (REQUIRED)")
	cmd.StringVar(&profileName, "profile", "", "Gate requirements profile name")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the gate result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if resultsPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --results is required")
		return 2
	}

	data, err := os.ReadFile(resultsPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read results: %v\n", err)
		return 2
	}
	var results []*contracts.ContractResult
	if err := json.Unmarshal(data, &results); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse results: %v\n", err)
		return 2
	}

	req := gate.DefaultRequirements()
	if profileName != "" {
		profile, err := config.LoadProfile(config.Load().ProfilesDir, profileName)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		req = profile.Requirements
	}

	verdict := gate.EvaluateQualityGates(results, req)
	printVerdict(stdout, verdict, jsonOutput)
	if !verdict.Passed {
		return 1
	}
	return 0
}
