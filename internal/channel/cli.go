// Package channel holds the transport adapters. Each adapter normalizes
// its transport's messages into domain.InboundMessage and renders
// outbound responses back; it never sees selection or trust state.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"switchboard/internal/domain"
)

// CLI implements domain.Channel for interactive terminal chat.
type CLI struct {
	bus    domain.MessageBus
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	userID string

	confirmMu sync.Mutex
	pending   chan bool
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
	UserID string
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.UserID == "" {
		cfg.UserID = "local"
	}
	return &CLI{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
		userID: cfg.UserID,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive loop and blocks until the context is
// cancelled or the input reaches EOF.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound("cli", func(msg domain.OutboundMessage) {
		_, _ = fmt.Fprintln(c.out)
		_, _ = fmt.Fprintln(c.out, msg.Content)
		_, _ = fmt.Fprint(c.out, "\nYou> ")
	})

	_, _ = fmt.Fprintln(c.out, "Switchboard. Type a request and press Enter. /quit to exit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		// A pending one-time confirmation consumes the next line.
		c.confirmMu.Lock()
		pending := c.pending
		c.confirmMu.Unlock()
		if pending != nil {
			answer := strings.ToLower(line)
			pending <- answer == "y" || answer == "yes"
			continue
		}

		c.bus.Publish(domain.InboundMessage{
			Channel: "cli",
			ChatID:  "direct",
			UserID:  c.userID,
			Content: line,
		})
	}
}

// RequestConfirmation prints the question and waits for a yes/no reply
// on the same input stream. Used for one-time action overrides.
func (c *CLI) RequestConfirmation(ctx context.Context, question string) (bool, error) {
	c.confirmMu.Lock()
	if c.pending != nil {
		c.confirmMu.Unlock()
		return false, fmt.Errorf("confirmation already in progress")
	}
	ch := make(chan bool, 1)
	c.pending = ch
	c.confirmMu.Unlock()

	defer func() {
		c.confirmMu.Lock()
		c.pending = nil
		c.confirmMu.Unlock()
	}()

	_, _ = fmt.Fprintf(c.out, "\n%s [y/N]> ", question)

	select {
	case confirmed := <-ch:
		return confirmed, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Stop is a no-op for CLI (Start returns on EOF or cancellation).
func (c *CLI) Stop() error { return nil }
