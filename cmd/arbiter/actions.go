package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/arbiterhq/arbiter/pkg/engine"
)

// actionFromSpec resolves the action under test from its CLI spec:
//
//	echo         — returns the input unchanged (wiring check)
//	exec:<cmd>   — runs <cmd>, input JSON on stdin, output JSON on stdout
func actionFromSpec(spec string) (engine.Action, error) {
	switch {
	case spec == "echo":
		return echoAction, nil
	case strings.HasPrefix(spec, "exec:"):
		parts := strings.Fields(strings.TrimPrefix(spec, "exec:"))
		if len(parts) == 0 {
			return nil, fmt.Errorf("exec action: empty command")
		}
		return execAction(parts[0], parts[1:]), nil
	default:
		return nil, fmt.Errorf("unknown action spec %q (want echo or exec:<command>)", spec)
	}
}

func echoAction(_ context.Context, input map[string]any) (any, error) {
	return input, nil
}

// execAction adapts a subprocess to the Action interface. The process gets
// the input as JSON on stdin and must print an output JSON document; a
// non-zero exit becomes the action error, stderr included.
func execAction(bin string, args []string) engine.Action {
	return func(ctx context.Context, input map[string]any) (any, error) {
		payload, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("exec action: marshal input: %w", err)
		}

		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Stdin = bytes.NewReader(payload)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return nil, fmt.Errorf("exec action: %s", msg)
		}

		var output any
		if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
			return nil, fmt.Errorf("exec action: parse output: %w", err)
		}
		return output, nil
	}
}
