package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/arbiterhq/arbiter/pkg/gate"
)

// runVerifyCmd implements `arbiter verify`.
//
// Validates signed report artifacts: hashes and signature.
//
// Exit codes:
//
//	0 = verification passed
//	1 = verification failed
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var reportsDir string
	cmd.StringVar(&reportsDir, "reports", "", "Path to the report directory (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if reportsDir == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --reports is required")
		return 2
	}

	sig, err := gate.VerifyReports(reportsDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Verification FAILED: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Verification passed: signed by %s at %s\n",
		sig.SignerID, sig.SignedAt.Format("2006-01-02T15:04:05Z07:00"))
	return 0
}
