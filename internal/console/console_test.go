package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestRun_StopCommand(t *testing.T) {
	var out bytes.Buffer
	stopped := 0

	got := Run(context.Background(), strings.NewReader("stop\n"), &out, func() { stopped++ })

	if !got {
		t.Error("Run = false; want true after stop")
	}
	if stopped != 1 {
		t.Errorf("stop called %d times; want 1", stopped)
	}
	want := Prompt + "Shutting down the server\n"
	if out.String() != want {
		t.Errorf("output = %q; want %q", out.String(), want)
	}
}

func TestRun_InvalidCommandsRepeatPrompt(t *testing.T) {
	var out bytes.Buffer
	stopped := 0

	got := Run(context.Background(), strings.NewReader("foo\nStop\n stop\nstop\n"), &out, func() { stopped++ })

	if !got || stopped != 1 {
		t.Fatalf("Run = %v, stopped = %d; want true, 1", got, stopped)
	}
	want := Prompt + "Invalid command: foo\n" +
		Prompt + "Invalid command: Stop\n" +
		Prompt + "Invalid command:  stop\n" +
		Prompt + "Shutting down the server\n"
	if out.String() != want {
		t.Errorf("output = %q; want %q", out.String(), want)
	}
}

func TestRun_EmptyLine(t *testing.T) {
	var out bytes.Buffer
	Run(context.Background(), strings.NewReader("\nstop\n"), &out, func() {})
	if !strings.Contains(out.String(), "Invalid command: \n") {
		t.Errorf("output = %q; want empty command reported", out.String())
	}
}

func TestRun_WindowsLineEndings(t *testing.T) {
	var out bytes.Buffer
	if !Run(context.Background(), strings.NewReader("stop\r\n"), &out, func() {}) {
		t.Errorf("Run = false for stop\\r\\n; output %q", out.String())
	}
}

func TestRun_EOFWithoutStop(t *testing.T) {
	var out bytes.Buffer
	stopped := false

	if Run(context.Background(), strings.NewReader("foo\n"), &out, func() { stopped = true }) {
		t.Error("Run = true; want false at EOF")
	}
	if stopped {
		t.Error("stop called at EOF")
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		done <- Run(ctx, pr, io.Discard, func() {})
	}()

	cancel()
	select {
	case got := <-done:
		if got {
			t.Error("Run = true; want false after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
