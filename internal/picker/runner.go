package picker

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ExecRunner drives an external picker process. Go has no in-process Torch
// runtime, so the bundle is evaluated by a helper command that reads the
// window from stdin (one "c1 c2 c3" line per sample, preceded by a rate
// header) and writes one "phaseIndex,sampleOffset,confidence" line per
// detection to stdout.
type ExecRunner struct {
	Command   string
	ModelPath string
}

// NewExecRunnerFactory returns a RunnerFactory binding the given helper
// command. Passing it to NewAdapter wires the on-disk bundle to the
// external process.
func NewExecRunnerFactory(command string) RunnerFactory {
	return func(modelPath string) (Runner, error) {
		if command == "" {
			return nil, fmt.Errorf("no picker runner command configured")
		}
		return &ExecRunner{Command: command, ModelPath: modelPath}, nil
	}
}

func (r *ExecRunner) Run(window [][]float64, samplingRate float64) ([][]float64, error) {
	var input bytes.Buffer
	fmt.Fprintf(&input, "rate %g\n", samplingRate)
	for _, row := range window {
		fmt.Fprintf(&input, "%g %g %g\n", row[0], row[1], row[2])
	}

	cmd := exec.Command(r.Command, r.ModelPath)
	cmd.Stdin = &input
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("picker command failed: %w", err)
	}

	return parseRunnerOutput(out), nil
}

// parseRunnerOutput converts helper stdout into raw float rows. Fields that
// fail to parse truncate the row; the adapter decides whether a short row
// is usable.
func parseRunnerOutput(out []byte) [][]float64 {
	var rows [][]float64
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var row []float64
		for _, field := range strings.Split(line, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				break
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return rows
}
