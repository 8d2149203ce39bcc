// Package cli holds the plumbing shared by the command line tools.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/barnettlynn/mfctools/internal/config"
)

// SetupLogging installs the default slog handler on stderr.
func SetupLogging(verbose bool, format string) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}
}

// LoadConfig loads path, or the default config file when path is empty.
func LoadConfig(path string, mode config.ValidationMode) (*config.Config, error) {
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config path failed: %w", err)
		}
	}
	fmt.Printf("Using config: %s\n", path)
	return config.LoadWithMode(path, mode)
}

// Confirm asks a y/n question on stdin.
func Confirm(prompt string) bool {
	return confirm(os.Stdin, os.Stdout, prompt)
}

func confirm(r io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s (y/n): ", prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

// SelectMenu shows items and lets the user pick one with the arrow keys.
// It returns -1 when stdin is not a terminal.
func SelectMenu(prompt string, items []string) int {
	if len(items) == 0 {
		return -1
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting raw mode: %v\r\n", err)
		return -1
	}
	defer term.Restore(fd, oldState)

	selected := 0
	fmt.Printf("%s\r\n", prompt)
	drawItems(os.Stdout, items, selected)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			break
		}
		next, action := menuKey(buf[:n], selected, len(items))
		switch action {
		case menuEnter:
			fmt.Printf("\r\n")
			return selected
		case menuQuit:
			term.Restore(fd, oldState)
			fmt.Printf("\r\n")
			os.Exit(0)
		case menuMove:
			selected = next
			// Move cursor up to start of menu (skip prompt line)
			fmt.Printf("\033[%dA", len(items))
			drawItems(os.Stdout, items, selected)
		}
	}
	return selected
}

type menuAction int

const (
	menuNone menuAction = iota
	menuMove
	menuEnter
	menuQuit
)

// menuKey interprets one read from a raw terminal.
func menuKey(in []byte, selected, count int) (int, menuAction) {
	if len(in) == 1 {
		switch in[0] {
		case 0x0D, 0x0A:
			return selected, menuEnter
		case 0x03: // Ctrl-C
			return selected, menuQuit
		}
		return selected, menuNone
	}
	if len(in) == 3 && in[0] == 0x1B && in[1] == '[' {
		switch in[2] {
		case 'A':
			if selected > 0 {
				return selected - 1, menuMove
			}
		case 'B':
			if selected < count-1 {
				return selected + 1, menuMove
			}
		}
	}
	return selected, menuNone
}

func drawItems(w io.Writer, items []string, selected int) {
	for i, item := range items {
		fmt.Fprint(w, "\033[2K\r")
		if i == selected {
			fmt.Fprintf(w, "> %s\r\n", item)
		} else {
			fmt.Fprintf(w, "  %s\r\n", item)
		}
	}
}
