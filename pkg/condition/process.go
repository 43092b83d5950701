package condition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/time/rate"
)

// ProcessEvaluator shells out to an external expression evaluator (the
// default deployment pairs it with a CUE-language checker). The request is
// handed over as a temporary JSON file; the tool prints a JSON verdict on
// stdout. Spawns are rate limited so a hot contract loop cannot fork-bomb
// the CI host.
type ProcessEvaluator struct {
	bin     string
	args    []string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ProcessOption configures a ProcessEvaluator.
type ProcessOption func(*ProcessEvaluator)

// WithProcessTimeout bounds one evaluator invocation.
func WithProcessTimeout(d time.Duration) ProcessOption {
	return func(p *ProcessEvaluator) { p.timeout = d }
}

// WithSpawnRate caps evaluator process spawns per second.
func WithSpawnRate(perSecond float64, burst int) ProcessOption {
	return func(p *ProcessEvaluator) { p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewProcessEvaluator wraps the external evaluator binary at bin. Extra args
// are passed before the request-file path.
func NewProcessEvaluator(bin string, args []string, opts ...ProcessOption) *ProcessEvaluator {
	p := &ProcessEvaluator{
		bin:     bin,
		args:    args,
		timeout: 10 * time.Second,
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		logger:  slog.Default().With("component", "condition.process"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type processRequest struct {
	Expression string         `json:"expression"`
	Context    map[string]any `json:"context"`
}

type processVerdict struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Evaluate runs the external tool once. Any failure to reach or parse the
// tool is an infrastructure error; the caller decides how to degrade.
func (p *ProcessEvaluator) Evaluate(ctx context.Context, expression string, bindings map[string]any) (Result, error) {
	verdict, err := p.run(ctx, expression, bindings)
	if err != nil {
		return Result{}, err
	}
	return Result{Valid: verdict.Valid, Diagnostic: verdict.Error}, nil
}

// EvaluateValue runs the external tool and returns the verdict's value field.
func (p *ProcessEvaluator) EvaluateValue(ctx context.Context, expression string, bindings map[string]any) (any, error) {
	verdict, err := p.run(ctx, expression, bindings)
	if err != nil {
		return nil, err
	}
	if !verdict.Valid && verdict.Error != "" {
		return nil, fmt.Errorf("condition: evaluate %q: %s", expression, verdict.Error)
	}
	return verdict.Value, nil
}

func (p *ProcessEvaluator) run(ctx context.Context, expression string, bindings map[string]any) (*processVerdict, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("condition: spawn limiter: %w", err)
	}

	req, err := json.Marshal(processRequest{Expression: expression, Context: bindings})
	if err != nil {
		return nil, fmt.Errorf("condition: marshal request: %w", err)
	}

	f, err := os.CreateTemp("", "arbiter-eval-*.json")
	if err != nil {
		return nil, fmt.Errorf("condition: temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(req); err != nil {
		f.Close()
		return nil, fmt.Errorf("condition: write request: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("condition: close request: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cctx, p.bin, append(append([]string{}, p.args...), f.Name())...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		p.logger.DebugContext(ctx, "evaluator process failed",
			"bin", p.bin, "error", err, "stderr", stderr.String())
		return nil, fmt.Errorf("condition: evaluator process: %w (stderr: %s)", err, stderr.String())
	}

	var verdict processVerdict
	if err := json.Unmarshal(stdout.Bytes(), &verdict); err != nil {
		return nil, fmt.Errorf("condition: parse evaluator output: %w", err)
	}
	return &verdict, nil
}
