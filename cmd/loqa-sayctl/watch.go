package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/loqalabs/loqa-say/internal/bus"
	"github.com/loqalabs/loqa-say/internal/protocol"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print speech status events and heartbeats until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Bool("heartbeats", false, "Include daemon heartbeats")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	heartbeats, err := cmd.Flags().GetBool("heartbeats")
	if err != nil {
		return err
	}

	client, err := bus.Connect(cmd.Context(), cfg.Bus, "loqa-sayctl-watch", quietLogger())
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer client.Close()

	msgs := make(chan *nats.Msg, 64)
	subjects := []string{protocol.SubjectStatus}
	if heartbeats {
		subjects = append(subjects, protocol.SubjectHeartbeatPrefix+".>")
	}
	for _, subject := range subjects {
		sub, err := client.Conn().ChanSubscribe(subject, msgs)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	out := cmd.OutOrStdout()
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case msg := <-msgs:
			printEvent(out, msg.Subject, msg.Data)
		}
	}
}

func printEvent(out io.Writer, subject string, data []byte) {
	if strings.HasPrefix(subject, protocol.SubjectHeartbeatPrefix+".") {
		var hb protocol.Heartbeat
		if err := json.Unmarshal(data, &hb); err != nil {
			fmt.Fprintf(out, "%s: malformed heartbeat\n", subject)
			return
		}
		fmt.Fprintf(out, "%s heartbeat node=%s playing=%t device=%q voice=%q\n",
			hb.Timestamp.Local().Format(time.TimeOnly), hb.NodeID, hb.Playing, hb.Device, hb.VoiceLoaded)
		return
	}
	var st protocol.SpeechStatus
	if err := json.Unmarshal(data, &st); err != nil {
		fmt.Fprintf(out, "%s: malformed status\n", subject)
		return
	}
	line := fmt.Sprintf("%s %s %s source=%s", st.Timestamp.Local().Format(time.TimeOnly), st.UtteranceID, st.Status, st.Source)
	if st.Error != "" {
		line += fmt.Sprintf(" error=%q", st.Error)
	}
	fmt.Fprintln(out, line)
}
