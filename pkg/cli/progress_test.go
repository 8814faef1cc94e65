package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

func TestStepProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewStepProgress(&buf)
	p.Start(4)

	s := trace.Summarize(sampleRecords())
	p.Step(s)
	p.Step(s)
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "Step 2/4") {
		t.Errorf("missing step counter: %q", out)
	}
	if !strings.Contains(out, "50.0% fallback") {
		t.Errorf("missing fallback rate: %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish() should end the line")
	}
}

func TestStepProgress_NoTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewStepProgress(&buf)
	p.Step(trace.NewSummary())
	if buf.Len() != 0 {
		t.Errorf("rendered without Start: %q", buf.String())
	}
}
