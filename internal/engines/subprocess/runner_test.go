package subprocess

import (
	"context"
	"errors"
	"testing"
	"time"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if !Available(name) {
		t.Skipf("%s not available", name)
	}
}

func TestRunner_StdinIsAttached(t *testing.T) {
	requireTool(t, "cat")

	out, err := New(time.Second, 0).Run(context.Background(), []byte("hello piper"), "cat")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(out) != "hello piper" {
		t.Errorf("got %q", out)
	}
}

func TestRunner_Timeout(t *testing.T) {
	requireTool(t, "sleep")

	start := time.Now()
	_, err := New(50*time.Millisecond, 0).Run(context.Background(), nil, "sleep", "5")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v does not wrap DeadlineExceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("process was not stopped promptly")
	}
}

func TestRunner_Cancel(t *testing.T) {
	requireTool(t, "sleep")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := New(5*time.Second, 0).Run(ctx, nil, "sleep", "5")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestRunner_Failures(t *testing.T) {
	requireTool(t, "sh")

	tests := []struct {
		name   string
		script string
		max    int
		want   error
	}{
		{name: "no output", script: "exit 0", want: ErrNoOutput},
		{name: "too large", script: "printf 0123456789", max: 4, want: ErrOutputTooLarge},
		{name: "exit status", script: "echo boom >&2; exit 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(time.Second, tt.max).Run(context.Background(), nil, "sh", "-c", tt.script)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Run = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	if _, err := New(0, 0).Run(context.Background(), nil, "definitely-not-a-synthesizer"); err == nil {
		t.Fatal("expected start error")
	}
	if Available("definitely-not-a-synthesizer") {
		t.Error("Available reported a missing binary")
	}
}
