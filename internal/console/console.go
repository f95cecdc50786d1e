// Package console runs the operator prompt on the process's standard input.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	Prompt      = "Type stop to shutdown the server: "
	stopCommand = "stop"
	stopMessage = "Shutting down the server"
	invalidFmt  = "Invalid command: %s\n"
)

// Run prompts on out and reads commands from in, one per line, until the
// stop command arrives, in is exhausted or ctx ends. It reports whether the
// stop command was received. stop is called before Run returns true.
func Run(ctx context.Context, in io.Reader, out io.Writer, stop func()) bool {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, Prompt)
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			cmd := strings.TrimRight(line, "\r")
			if cmd == stopCommand {
				fmt.Fprintln(out, stopMessage)
				stop()
				return true
			}
			fmt.Fprintf(out, invalidFmt, cmd)
		}
	}
}
