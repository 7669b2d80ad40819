package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"web-search-chat/internal/client"
	"web-search-chat/internal/terminal"
	"web-search-chat/internal/ui"
)

func newChatCommand() *cobra.Command {
	var (
		serverURL string
		settle    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			verbose, _ := cmd.Flags().GetBool("verbose")
			if level == "" {
				level = "warn"
			}
			if err := setupLogging(level, verbose); err != nil {
				return err
			}
			return runChat(cmd.Context(), serverURL, settle)
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "ws://localhost:8000/ws/chat", "Chat server websocket URL")
	cmd.Flags().DurationVar(&settle, "settle", 1500*time.Millisecond, "Quiet period after the last fragment before the answer is rendered")
	return cmd
}

func runChat(parent context.Context, serverURL string, settle time.Duration) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	display := ui.NewDisplay(os.Stdout, terminal.Width(100), settle, terminal.IsTerminal())

	c, err := client.Dial(ctx, serverURL)
	if err != nil {
		return err
	}
	defer c.Close()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- c.Listen(ctx, display.Handle)
		stop()
	}()

	display.PrintWelcome(serverURL)

	lines := make(chan string)
	go func() {
		defer close(lines)
		reader := terminal.NewLineReader(os.Stdin)
		for {
			line, err := reader.ReadLine()
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	display.PrintPrompt()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || terminal.IsExitCommand(line) {
				break loop
			}
			if strings.TrimSpace(line) == "" {
				display.PrintPrompt()
				continue
			}
			display.BeginQuery()
			if err := c.Send(line); err != nil {
				display.PrintError(err)
				break loop
			}
		}
	}

	display.Flush()
	display.PrintGoodbye()

	select {
	case err := <-listenErr:
		if err != nil && err != io.EOF {
			return err
		}
	default:
	}
	return nil
}
