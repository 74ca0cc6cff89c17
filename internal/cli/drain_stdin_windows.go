//go:build windows
// +build windows

package cli

// drainStdin is a no-op on Windows.
func drainStdin() {}

// restoreTTY is a no-op on Windows.
func restoreTTY() {}
