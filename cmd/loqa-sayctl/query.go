package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/loqalabs/loqa-say/internal/config"
	"github.com/loqalabs/loqa-say/internal/history"
	"github.com/loqalabs/loqa-say/internal/voice"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List output devices known to the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var devices []string
		if err := query(cmd, "/v1/devices", &devices); err != nil {
			return err
		}
		for _, name := range devices {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List installed voices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var voices []voice.Entry
		if err := query(cmd, "/v1/voices", &voices); err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, v := range voices {
			fmt.Fprintf(w, "%s\t%s\n", v.Name, v.Path)
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent utterances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		var entries []history.Entry
		if err := query(cmd, "/v1/history?limit="+strconv.Itoa(limit), &entries); err != nil {
			return err
		}
		writeHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of entries")
	rootCmd.AddCommand(devicesCmd, voicesCmd, historyCmd)
}

func writeHistory(out io.Writer, entries []history.Entry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSOURCE\tSTATUS\tVOICE\tDEVICE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.StartedAt.Local().Format(time.DateTime), e.Source, e.Status, e.Voice, e.Device)
	}
	_ = w.Flush()
}

func query(cmd *cobra.Command, path string, v any) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(cmd))
	defer cancel()
	return getJSON(ctx, http.DefaultClient, apiBase(cfg.HTTP), path, v)
}

func apiBase(cfg config.HTTPConfig) string {
	host := cfg.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "http", Host: host + ":" + strconv.Itoa(cfg.Port)}
	return u.String()
}

func getJSON(ctx context.Context, client *http.Client, base, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return fmt.Errorf("GET %s: %s", path, body.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
