package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/arbiterhq/arbiter/pkg/condition"
	"github.com/arbiterhq/arbiter/pkg/config"
	"github.com/arbiterhq/arbiter/pkg/contracts"
	"github.com/arbiterhq/arbiter/pkg/derive"
	"github.com/arbiterhq/arbiter/pkg/engine"
	"github.com/arbiterhq/arbiter/pkg/gate"
	"github.com/arbiterhq/arbiter/pkg/history"
)

// runRunCmd implements `arbiter run`.
//
// Loads contract definitions, derives test cases, executes every case through
// the contract runtime, evaluates the quality gate, and writes the report
// artifacts.
//
// Exit codes:
//
//	0 = gate passed
//	1 = gate failed
//	2 = runtime error
func runRunCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		contractsPath string
		outDir        string
		profileName   string
		actionSpec    string
		propertyCount int
		seed          int64
		signReports   bool
		jsonOutput    bool
		resultsOut    string
	)

	cmd.StringVar(&contractsPath, "contracts", "", "Path to contract definitions JSON (REQUIRED)")
	cmd.StringVar(&outDir, "out", "", "Report output directory (default from ARBITER_REPORT_DIR)")
	cmd.StringVar(&profileName, "profile", "", "Gate requirements profile name (default: built-in thresholds)")
	cmd.StringVar(&actionSpec, "action", "echo", "Action under test: echo | exec:<command>")
	cmd.IntVar(&propertyCount, "property-count", 10, "Random property cases per contract")
	cmd.Int64Var(&seed, "seed", 0, "Random seed for property derivation (0 = nondeterministic)")
	cmd.BoolVar(&signReports, "sign", false, "Sign the report artifacts")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the gate result as JSON")
	cmd.StringVar(&resultsOut, "results-out", "", "Also write the raw result batch as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if contractsPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --contracts is required")
		return 2
	}

	cfg := config.Load()
	if outDir == "" {
		outDir = cfg.ReportDir
	}
	logger := newLogger(stderr, cfg.LogLevel)

	defs, err := contracts.LoadContractsFile(contractsPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load contracts: %v\n", err)
		return 2
	}

	req := gate.DefaultRequirements()
	if profileName != "" {
		profile, err := config.LoadProfile(cfg.ProfilesDir, profileName)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		req = profile.Requirements
	}

	eval, err := newEvaluator(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	opts := []engine.Option{engine.WithLogger(logger)}
	store, closeStore, err := newHistoryStore(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: history store: %v\n", err)
		return 2
	}
	if store != nil {
		opts = append(opts, engine.WithHistoryStore(store))
		defer closeStore()
	}

	action, err := actionFromSpec(actionSpec)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	eng := engine.New(eval, opts...)
	ctx := context.Background()
	for _, def := range defs {
		if err := eng.RegisterContract(ctx, def); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: register contract %s: %v\n", def.ID, err)
			return 2
		}
	}

	genOpts := []derive.Option{}
	if seed != 0 {
		genOpts = append(genOpts, derive.WithSeed(seed))
	}
	gen := derive.NewGenerator(eng, genOpts...)

	var results []*contracts.ContractResult
	for _, def := range defs {
		cases, err := gen.GenerateAll(def.ID, propertyCount)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: derive tests for %s: %v\n", def.ID, err)
			return 2
		}
		for _, tc := range cases {
			var execOpts *engine.ExecuteOptions
			if tc.FaultScenario != "" {
				execOpts = &engine.ExecuteOptions{FaultScenario: tc.FaultScenario}
			}
			res, err := eng.ExecuteWithContract(ctx, tc.ContractID, action, tc.Input, execOpts)
			if err != nil && res == nil {
				_, _ = fmt.Fprintf(stderr, "Error: execute %s: %v\n", tc.ContractID, err)
				return 2
			}
			// An action failure with a recorded result still feeds the gate.
			results = append(results, res)
		}
	}

	verdict := gate.EvaluateQualityGates(results, req)

	if err := gate.WriteReports(outDir, "arbiter", results, eng.Coverage()); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if resultsOut != "" {
		if err := writeResultBatch(resultsOut, results); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}
	if signReports {
		pub, priv, err := gate.GenerateSigningKey()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if _, err := gate.SignReports(outDir, "arbiter-run", pub, gate.Ed25519SignerFunc(priv)); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	printVerdict(stdout, verdict, jsonOutput)
	if !verdict.Passed {
		return 1
	}
	return 0
}

func printVerdict(stdout io.Writer, verdict *contracts.QualityGateResult, jsonOutput bool) {
	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(verdict)
		return
	}
	status := "FAILED"
	if verdict.Passed {
		status = "PASSED"
	}
	fmt.Fprintf(stdout, "Gate %s: %d/%d tests passed (%.1f%%), %d error(s), recommendation: %s\n",
		status, verdict.PassedTests, verdict.TotalTests, verdict.PassRate*100,
		verdict.ErrorCount, verdict.Recommendation)
	fmt.Fprintf(stdout, "Coverage: contract %.2f, scenario %.2f, fault %.2f, resource compliance %.2f\n",
		verdict.Coverage.ContractCoverage, verdict.Coverage.ScenarioCoverage,
		verdict.Coverage.FaultCoverage, verdict.Coverage.ResourceBudgetCompliance)
}

func writeResultBatch(path string, results []*contracts.ContractResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func newEvaluator(cfg *config.Config) (condition.Evaluator, error) {
	if cfg.EvaluatorCmd != "" {
		parts := strings.Fields(cfg.EvaluatorCmd)
		return condition.NewProcessEvaluator(parts[0], parts[1:]), nil
	}
	return condition.NewCELEvaluator()
}

func newHistoryStore(cfg *config.Config) (history.Store, func(), error) {
	switch cfg.HistoryBackend {
	case "", "none":
		return nil, nil, nil
	case "memory":
		return history.NewMemoryStore(), func() {}, nil
	case "postgres":
		store, err := history.OpenPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "sqlite":
		store, err := history.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
