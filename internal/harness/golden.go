package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs a scenario, fails t on unmet expectations, and compares
// the transcript with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares a result's transcript with a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(Transcript(name, result)))
}

// Transcript renders a result as readable text.
//
//	[+1h0m0s] Alice (!aaaa0001) > !post Swap meet
//	  ok
//	  < Post #1 created successfully!
//	  ~ !bbbb0002: New post #1 from Alice: Swap meet
func Transcript(name string, result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", name)

	for _, e := range result.Transcript {
		if e.Sweep {
			fmt.Fprintf(&b, "[+%s] sweep\n  expired %d\n", e.At, e.Expired)
			continue
		}

		sender := e.From
		if e.Name != "" {
			sender = fmt.Sprintf("%s (%s)", e.Name, e.From)
		}
		fmt.Fprintf(&b, "[+%s] %s > %s\n", e.At, sender, e.Text)

		if e.Ignored {
			b.WriteString("  ignored\n")
			continue
		}
		fmt.Fprintf(&b, "  %s\n", e.Outcome)
		for _, r := range e.Replies {
			fmt.Fprintf(&b, "  < %s\n", strings.ReplaceAll(r, "\n", "\n    "))
		}
		for _, n := range e.Notifications {
			fmt.Fprintf(&b, "  ~ %s: %s\n", n.To, n.Text)
		}
	}
	return b.String()
}
