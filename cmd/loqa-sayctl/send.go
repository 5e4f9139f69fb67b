package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-say/internal/bus"
	"github.com/loqalabs/loqa-say/internal/config"
	"github.com/loqalabs/loqa-say/internal/dispatch"
	"github.com/loqalabs/loqa-say/internal/protocol"
	"github.com/spf13/cobra"
)

var errRejected = errors.New("command rejected")

// busCommand maps a subcommand onto a dispatch command.
type busCommand struct {
	use     string
	short   string
	command dispatch.Command
	args    cobra.PositionalArgs
}

var busCommands = []busCommand{
	{use: "speak <text>", short: "Speak the given text", command: dispatch.SpeakText, args: cobra.MinimumNArgs(1)},
	{use: "clipboard", short: "Speak the clipboard contents", command: dispatch.SpeakClipboard, args: cobra.NoArgs},
	{use: "toggle", short: "Show or hide the input box", command: dispatch.ToggleInputSurface, args: cobra.NoArgs},
	{use: "stop", short: "Stop playback", command: dispatch.Stop, args: cobra.NoArgs},
	{use: "device [name]", short: "Choose the output device", command: dispatch.ChooseDevice, args: cobra.MaximumNArgs(1)},
	{use: "voice [name]", short: "Choose the voice", command: dispatch.ChooseVoice, args: cobra.MaximumNArgs(1)},
	{use: "quit", short: "Shut the daemon down", command: dispatch.Quit, args: cobra.NoArgs},
}

func init() {
	for _, bc := range busCommands {
		rootCmd.AddCommand(&cobra.Command{
			Use:   bc.use,
			Short: bc.short,
			Args:  bc.args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSend(cmd, bc.command, strings.Join(args, " "))
			},
		})
	}
}

func newCommandMessage(command dispatch.Command, arg string, now time.Time) protocol.CommandMessage {
	return protocol.CommandMessage{
		RequestID: uuid.NewString(),
		Command:   string(command),
		Arg:       arg,
		Sender:    "loqa-sayctl",
		Timestamp: now.UTC(),
	}
}

func runSend(cmd *cobra.Command, command dispatch.Command, arg string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(cmd))
	defer cancel()

	reply, err := send(ctx, cfg.Bus, newCommandMessage(command, arg, time.Now()))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s queued (%s)\n", command, reply.RequestID)
	return nil
}

// send delivers msg to the daemon and waits for its acknowledgement.
func send(ctx context.Context, cfg config.BusConfig, msg protocol.CommandMessage) (protocol.CommandReply, error) {
	client, err := bus.Connect(ctx, cfg, "loqa-sayctl", quietLogger())
	if err != nil {
		return protocol.CommandReply{}, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer client.Close()

	var reply protocol.CommandReply
	if err := client.RequestJSON(ctx, protocol.SubjectCommand, msg, &reply); err != nil {
		return reply, fmt.Errorf("send %s: %w", msg.Command, err)
	}
	if !reply.Accepted {
		return reply, fmt.Errorf("%w: %s", errRejected, reply.Error)
	}
	return reply, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
