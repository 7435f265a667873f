// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 7
)

// MaxParticipantID is the largest accepted participant ID.
const MaxParticipantID = 99

// Config configures a Console.
type Config struct {
	In     io.Reader
	Out    io.Writer
	Logger *slog.Logger
}

// Console prompts the operator and prints session progress. Prompts
// must be issued from one goroutine; printing is safe from any.
type Console struct {
	lines  chan string
	out    io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	readErr error

	title   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	warning lipgloss.Style
	hint    lipgloss.Style
}

// New starts reading cfg.In in the background.
func New(cfg Config) *Console {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	renderer := lipgloss.NewRenderer(cfg.Out)

	c := &Console{
		lines:   make(chan string),
		out:     cfg.Out,
		logger:  logger,
		title:   renderer.NewStyle().Bold(true),
		label:   renderer.NewStyle().Faint(true),
		value:   renderer.NewStyle().Foreground(lipgloss.Color("12")),
		warning: renderer.NewStyle().Foreground(lipgloss.Color("214")),
		hint:    renderer.NewStyle().Italic(true).Faint(true),
	}
	go c.readLines(cfg.In)
	return c
}

func (c *Console) readLines(in io.Reader) {
	defer close(c.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		c.lines <- strings.TrimRight(scanner.Text(), "\r")
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// ReadLine returns the next input line, io.EOF at end of input, or the
// context error.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			return "", c.readErr
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Printf writes formatted text.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Info prints one line of progress.
func (c *Console) Info(message string) {
	fmt.Fprintln(c.out, message)
}

// Warn prints one highlighted line.
func (c *Console) Warn(message string) {
	fmt.Fprintln(c.out, c.warning.Render(message))
}

// Title prints a bold heading preceded by a blank line.
func (c *Console) Title(message string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.title.Render(message))
}

// AskParticipantID asks for a participant ID in 1..99. A blank line
// selects the anonymous participant 0. IDs for which complete reports
// true are refused and asked again.
func (c *Console) AskParticipantID(ctx context.Context, last int, complete func(int) bool) (int, error) {
	if last > 0 {
		fmt.Fprintf(c.out, "The last participant ID is %s\n", c.value.Render(strconv.Itoa(last)))
	}
	fmt.Fprint(c.out, "Participant ID: ")

	for {
		line, err := c.ReadLine(ctx)
		if err != nil {
			return 0, fmt.Errorf("participant ID is required: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			c.logger.Info("anonymous participant")
			return 0, nil
		}
		id, err := strconv.Atoi(line)
		if err != nil || id < 1 || id > MaxParticipantID {
			fmt.Fprintf(c.out, "Please enter a valid participant ID (1-%d): ", MaxParticipantID)
			continue
		}
		if complete != nil && complete(id) {
			fmt.Fprint(c.out, c.warning.Render("This participant has all data collected.")+" Enter another ID: ")
			continue
		}
		c.logger.Info("participant selected", "participant", id)
		return id, nil
	}
}

// WaitStart blocks until the operator presses Enter.
func (c *Console) WaitStart(ctx context.Context) error {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.title.Render("Press ENTER to start"))
	_, err := c.ReadLine(ctx)
	return err
}

// WaitStop blocks until the operator presses Enter or ctx ends.
func (c *Console) WaitStop(ctx context.Context) error {
	fmt.Fprintln(c.out, c.hint.Render("Press ENTER to stop, Ctrl+C to interrupt"))
	_, err := c.ReadLine(ctx)
	return err
}

// Rating asks for a difficulty rating until a value in 1..7 is given.
func (c *Console) Rating(ctx context.Context) (int, error) {
	fmt.Fprintln(c.out, "Overall, how difficult or easy did you find this task?")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.label.Render("Very difficult                                        Very easy"))
	fmt.Fprintln(c.out, "--- 1 ------ 2 ------ 3 ------ 4 ------ 5 ------ 6 ------ 7 ---")
	fmt.Fprintln(c.out)

	for {
		line, err := c.ReadLine(ctx)
		if err != nil {
			return 0, err
		}
		rating, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || rating < MinRating || rating > MaxRating {
			fmt.Fprintf(c.out, "Please enter a number between %d and %d.\n", MinRating, MaxRating)
			continue
		}
		c.logger.Info("rating entered", "rating", rating)
		return rating, nil
	}
}
