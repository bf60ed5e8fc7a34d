package sinks

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/spoutlog/spout/pkg/types"
)

func TestMain(m *testing.M) {
	// Every sink must stop its writer goroutine on Close.
	goleak.VerifyTestMain(m)
}

// rawFormat renders just the message, keeping test output deterministic.
func rawFormat() types.Format {
	return types.Format{
		TimeLayout: "15:04:05",
		Fn:         func(r types.FormatRecord) string { return r.Msg() + "\n" },
	}
}

func record(level types.Level, msg string) *types.Record {
	return &types.Record{Level: level, Msg: msg}
}

// quietDiag drops diagnostics so expected failures don't spam test output.
func quietDiag(component, path, msg string, err error) {}
