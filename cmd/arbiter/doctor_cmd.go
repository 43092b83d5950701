package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/arbiterhq/arbiter/pkg/condition"
	"github.com/arbiterhq/arbiter/pkg/config"
)

// runDoctorCmd implements `arbiter doctor` — configuration health check.
//
// Exit codes:
//
//	0 = all checks pass
//	1 = one or more checks failed
func runDoctorCmd(stdout, stderr io.Writer) int {
	type checkResult struct {
		Name   string `json:"name"`
		Status string `json:"status"` // "ok", "warn", "fail"
		Detail string `json:"detail,omitempty"`
	}

	cfg := config.Load()
	var results []checkResult
	allOK := true

	// Check 1: Go runtime
	results = append(results, checkResult{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	// Check 2: condition evaluator
	if cfg.EvaluatorCmd == "" {
		eval, err := condition.NewCELEvaluator()
		if err != nil {
			results = append(results, checkResult{Name: "evaluator", Status: "fail", Detail: err.Error()})
			allOK = false
		} else {
			res, err := eval.Evaluate(context.Background(), "1 + 1 == 2", nil)
			if err != nil || !res.Valid {
				results = append(results, checkResult{Name: "evaluator", Status: "fail", Detail: "self-test expression failed"})
				allOK = false
			} else {
				results = append(results, checkResult{Name: "evaluator", Status: "ok", Detail: "in-process (cel)"})
			}
		}
	} else {
		bin := strings.Fields(cfg.EvaluatorCmd)[0]
		if _, err := exec.LookPath(bin); err != nil {
			results = append(results, checkResult{Name: "evaluator", Status: "fail", Detail: fmt.Sprintf("%s not found in PATH", bin)})
			allOK = false
		} else {
			results = append(results, checkResult{Name: "evaluator", Status: "ok", Detail: cfg.EvaluatorCmd})
		}
	}

	// Check 3: history backend
	switch cfg.HistoryBackend {
	case "", "none":
		results = append(results, checkResult{Name: "history", Status: "ok", Detail: "disabled"})
	case "memory", "sqlite":
		results = append(results, checkResult{Name: "history", Status: "ok", Detail: cfg.HistoryBackend})
	case "postgres":
		if _, err := exec.LookPath("pg_isready"); err == nil {
			if err := exec.Command("pg_isready").Run(); err != nil {
				results = append(results, checkResult{Name: "history", Status: "fail", Detail: "pg_isready failed"})
				allOK = false
			} else {
				results = append(results, checkResult{Name: "history", Status: "ok", Detail: "postgres reachable"})
			}
		} else {
			results = append(results, checkResult{Name: "history", Status: "warn", Detail: "pg_isready not found in PATH"})
		}
	default:
		results = append(results, checkResult{Name: "history", Status: "fail", Detail: fmt.Sprintf("unknown backend %q", cfg.HistoryBackend)})
		allOK = false
	}

	// Check 4: report directory
	if _, err := os.Stat(cfg.ReportDir); err != nil {
		results = append(results, checkResult{
			Name:   "report_dir",
			Status: "warn",
			Detail: fmt.Sprintf("%s does not exist (created on first run)", cfg.ReportDir),
		})
	} else {
		results = append(results, checkResult{Name: "report_dir", Status: "ok", Detail: cfg.ReportDir})
	}

	// Check 5: profiles directory
	if _, err := os.Stat(cfg.ProfilesDir); err != nil {
		results = append(results, checkResult{
			Name:   "profiles_dir",
			Status: "warn",
			Detail: fmt.Sprintf("%s does not exist (built-in thresholds apply)", cfg.ProfilesDir),
		})
	} else {
		results = append(results, checkResult{Name: "profiles_dir", Status: "ok", Detail: cfg.ProfilesDir})
	}

	fmt.Fprintf(stdout, "\n%sArbiter Doctor%s\n", ColorBold+ColorCyan, ColorReset)
	fmt.Fprintln(stdout, "──────────────")
	for _, r := range results {
		icon := "✅"
		if r.Status == "warn" {
			icon = "⚠️ "
		} else if r.Status == "fail" {
			icon = "❌"
		}
		fmt.Fprintf(stdout, "  %s  %-14s %s%s%s\n", icon, r.Name, ColorGray, r.Detail, ColorReset)
	}

	if allOK {
		fmt.Fprintf(stdout, "\n%sAll checks passed.%s\n", ColorGreen+ColorBold, ColorReset)
		return 0
	}
	return 1
}
