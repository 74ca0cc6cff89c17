//go:build !windows
// +build !windows

package cli

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/term"
)

// drainStdin discards stdin bytes left behind by survey rendering (cursor
// position reports) so they do not leak into the next prompt.
func drainStdin() {
	if !isTerminal() {
		return
	}
	fd := int(os.Stdin.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		stdinReader.Reset(os.Stdin)
		return
	}
	defer func() {
		_ = syscall.SetNonblock(fd, false)
		stdinReader.Reset(os.Stdin)
	}()

	buf := make([]byte, 256)
	deadline := time.Now().Add(80 * time.Millisecond)
	for time.Now().Before(deadline) {
		n, err := syscall.Read(fd, buf)
		if n > 0 {
			deadline = time.Now().Add(80 * time.Millisecond)
			continue
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		break
	}
}

// restoreTTY puts the terminal back in cooked mode after a prompt was
// interrupted mid-read.
func restoreTTY() {
	if !isTerminal() {
		return
	}
	fd := int(os.Stdin.Fd())
	_ = syscall.SetNonblock(fd, false)
	stdinReader.Reset(os.Stdin)

	cmd := exec.Command("stty", "sane")
	cmd.Stdin = os.Stdin
	_ = cmd.Run()
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
