package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// StdoutSink writes one JSON line per event to standard output.
type StdoutSink struct{}

func NewStdout() *StdoutSink { return &StdoutSink{} }

func (s *StdoutSink) Name() string { return "stdout" }

func (s *StdoutSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}

func (s *StdoutSink) Close(context.Context) error { return nil }
