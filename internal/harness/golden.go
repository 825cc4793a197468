package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/statetree/internal/route"
)

// Trace renders a result as canonical JSON: the scenario name, the start
// cycle and every step with its counts, live node count and error kind.
// Error messages are left out because they carry node ids and wrapping
// that are not part of a scenario's contract.
func Trace(res *Result) ([]byte, error) {
	steps := make([]any, len(res.Steps))
	for i, sr := range res.Steps {
		steps[i] = stepMap(sr)
	}
	return route.MarshalCanonical(map[string]any{
		"scenario": res.Scenario,
		"start":    stepMap(res.Start),
		"steps":    steps,
	})
}

func stepMap(sr StepResult) map[string]any {
	m := map[string]any{
		"index":   sr.Index,
		"op":      sr.Op,
		"starts":  sr.Counts.NodeStarts,
		"stops":   sr.Counts.NodeStops,
		"updates": sr.Counts.NodeUpdates,
		"nodes":   sr.Nodes,
	}
	if sr.Name != "" {
		m["name"] = sr.Name
	}
	if sr.Error != "" {
		m["error"] = sr.Error
	}
	return m
}

// RunWithGolden executes a scenario, fails the test if any expectation
// failed, and compares its trace against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) (*Result, error) {
	t.Helper()

	res, err := Run(sc)
	if err != nil {
		return nil, err
	}
	if !res.Pass {
		for _, msg := range res.Errors {
			t.Error(msg)
		}
	}
	return res, AssertGolden(t, sc.Name, res)
}

// AssertGolden compares the trace of an existing result against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, name string, res *Result) error {
	t.Helper()

	data, err := Trace(res)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
