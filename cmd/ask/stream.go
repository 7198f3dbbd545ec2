package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/mtzanidakis/quorum/internal/stream"
	"github.com/spf13/cobra"
)

var verbose bool

var streamCmd = &cobra.Command{
	Use:   "stream <query>",
	Short: "Stream a query, showing each agent as it works",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return streamQuery(ctx, http.DefaultClient, baseURL, strings.Join(args, " "), cmd.OutOrStdout(), verbose)
	},
}

func init() {
	streamCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show agent output chunks and messages")
}

// errNoComplete means the stream ended before the final answer.
var errNoComplete = errors.New("stream ended without an answer")

func streamQuery(ctx context.Context, hc *http.Client, base, query string, w io.Writer, verbose bool) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("stream: %s %s", resp.Status, e.Error)
	}

	r := &renderer{w: w, verbose: verbose}
	if err := stream.Read(resp.Body, r.render); err != nil {
		return err
	}
	if r.failed != "" {
		return errors.New(r.failed)
	}
	if !r.done {
		return errNoComplete
	}
	return nil
}

type renderer struct {
	w       io.Writer
	verbose bool
	done    bool
	// failed holds the message of the error that ended the run.
	failed string
}

var (
	agentColor = color.New(color.FgCyan, color.Bold)
	dimColor   = color.New(color.Faint)
	okColor    = color.New(color.FgGreen)
	errColor   = color.New(color.FgRed)
	toolColor  = color.New(color.FgYellow)
)

func (r *renderer) render(ev stream.Raw) error {
	switch ev.Type {
	case stream.KindAgentStart:
		var p stream.AgentStartPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		fmt.Fprintf(r.w, "%s %s\n", agentColor.Sprint("▶"), agentColor.Sprint(p.Agent))

	case stream.KindMessage:
		var p stream.MessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		if r.verbose {
			dimColor.Fprintf(r.w, "  %s → %s: %s\n", p.From, p.To, p.Content)
		}

	case stream.KindToolCall:
		var p stream.ToolCallPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		fmt.Fprintf(r.w, "  %s %s%s\n", toolColor.Sprint("⚙"), p.Name, formatInput(p.Input))

	case stream.KindToolResult:
		var p stream.ToolResultPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		fmt.Fprintf(r.w, "  %s %s\n", toolColor.Sprint("↳"), p.Output)

	case stream.KindAgentOutput:
		var p stream.AgentOutputPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		if r.verbose {
			dimColor.Fprint(r.w, p.Content)
		}

	case stream.KindAgentComplete:
		var p stream.AgentCompletePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		if r.verbose && p.Agent != stream.Orchestrator {
			fmt.Fprintln(r.w)
		}
		fmt.Fprintf(r.w, "%s %s %s\n", okColor.Sprint("✓"), p.Agent, dimColor.Sprintf("(%.1fs, ~%d tokens)", p.Duration, p.Tokens))

	case stream.KindError:
		var p stream.ErrorPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		fmt.Fprintf(r.w, "%s %s: %s\n", errColor.Sprint("✗"), p.Agent, p.Message)
		// Orchestrator errors end the run; specialist errors do not.
		if p.Agent == stream.Orchestrator {
			r.failed = p.Message
		}

	case stream.KindComplete:
		var p stream.CompletePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		r.done = true
		fmt.Fprintf(r.w, "\n%s\n\n", p.Answer)
		if len(p.Sources) > 0 {
			dimColor.Fprintf(r.w, "sources: %s\n", strings.Join(p.Sources, ", "))
		}
		dimColor.Fprintf(r.w, "completed in %.1fs\n", p.Duration)
	}
	return nil
}

func formatInput(in map[string]string) string {
	if len(in) == 0 {
		return ""
	}
	parts := make([]string, 0, len(in))
	for k, v := range in {
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
