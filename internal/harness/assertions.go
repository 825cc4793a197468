package harness

import (
	"fmt"
	"maps"
	"slices"
)

// checkStep returns one message per failed expectation of sr.
func checkStep(sr StepResult, exp *Expect, wantErr string, ex *execution) []string {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, sr.label()+": "+fmt.Sprintf(format, args...))
	}

	switch {
	case wantErr != "" && sr.Error != wantErr:
		if sr.Error == "" {
			fail("expected error %q, step succeeded", wantErr)
		} else {
			fail("expected error %q, got %q: %s", wantErr, sr.Error, sr.Message)
		}
	case wantErr == "" && sr.Error != "":
		fail("unexpected error %q: %s", sr.Error, sr.Message)
	}
	if exp == nil {
		return failures
	}

	checkCount := func(name string, want *int, got int) {
		if want != nil && *want != got {
			fail("expected %d %s, got %d", *want, name, got)
		}
	}
	checkCount("node starts", exp.Starts, sr.Counts.NodeStarts)
	checkCount("node stops", exp.Stops, sr.Counts.NodeStops)
	checkCount("node updates", exp.Updates, sr.Counts.NodeUpdates)
	checkCount("node events", exp.Events, sr.Counts.AllNodeEvents())
	checkCount("live nodes", exp.Nodes, sr.Nodes)
	if exp.Behaviors != nil {
		checkCount("tracked behaviors", exp.Behaviors, len(ex.tracker.Behaviors()))
	}

	for _, path := range slices.Sorted(maps.Keys(exp.Keys)) {
		want := exp.Keys[path]
		got, err := ex.fieldKeys(path)
		if err != nil {
			fail("keys of %q: %v", path, err)
			continue
		}
		if want == nil {
			want = []string{}
		}
		if !slices.Equal(want, got) {
			fail("keys of %q: expected %q, got %q", path, want, got)
		}
	}

	for _, path := range slices.Sorted(maps.Keys(exp.State)) {
		got, err := ex.state(path)
		if err != nil {
			fail("state of %q: %v", displayPath(path), err)
			continue
		}
		want := exp.State[path]
		for _, k := range slices.Sorted(maps.Keys(want)) {
			v, ok := got[k]
			switch {
			case !ok:
				fail("state of %q: key %q not set, expected %q", displayPath(path), k, want[k])
			case v != want[k]:
				fail("state of %q: key %q is %q, expected %q", displayPath(path), k, v, want[k])
			}
		}
	}
	return failures
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
