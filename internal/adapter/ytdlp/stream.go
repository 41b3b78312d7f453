package ytdlp

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

const maxLineBytes = 1024 * 1024

// runStreaming starts cmd and forwards every non-empty output line to onLine.
// Stdout and stderr are drained by separate goroutines so neither pipe can
// fill up and stall the child; lines are delivered from the calling goroutine
// in arrival order, preserving the order within each stream.
func runStreaming(cmd *exec.Cmd, onLine func(string)) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	lines := make(chan string)
	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(stdout, lines, &wg)
	go scanLines(stderr, lines, &wg)
	go func() {
		wg.Wait()
		close(lines)
	}()

	for line := range lines {
		if onLine != nil {
			onLine(line)
		}
	}
	return cmd.Wait()
}

func scanLines(r io.Reader, out chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\t ")
		if line == "" {
			continue
		}
		out <- line
	}
	// keep the pipe drained after an overlong line
	_, _ = io.Copy(io.Discard, r)
}
