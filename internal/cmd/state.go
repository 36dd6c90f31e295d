package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/inercia/tether/internal/channel"
	"github.com/inercia/tether/internal/logging"
	"github.com/inercia/tether/internal/message"
	"github.com/inercia/tether/internal/session"
	"github.com/inercia/tether/internal/state"
)

var stateJSON bool

// stateCmd represents the state command
var stateCmd = &cobra.Command{
	Use:   "state <file.jsonl>",
	Short: "Replay a recorded engine stream and show the derived state",
	Long: `Read inbound envelopes, one JSON object per line, and print the
session state derived after each of them.

Use "-" to read from stdin. Lines that are not envelopes are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)

	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "Print each state as a JSON object")
}

func runState(cmd *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return replay(r, cmd.OutOrStdout(), stateJSON)
}

// replay feeds every envelope of r into a store and writes the state
// derived after each one.
func replay(r io.Reader, w io.Writer, asJSON bool) error {
	store := session.NewStore()
	enc := json.NewEncoder(w)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 || scanner.Bytes()[0] != '{' {
			continue
		}
		env, err := channel.Decode(scanner.Bytes())
		if err != nil {
			logging.Channel().Warn("Skipping malformed envelope", "line", line, "error", err)
			continue
		}

		switch {
		case env.Type == message.InboundState && env.State != nil:
			store.MergeState(*env.State)
		case env.Type == message.InboundMessageUpdated && env.Message != nil:
			store.MergeOne(*env.Message)
		default:
			continue
		}

		info := store.State()
		if asJSON {
			if err := enc.Encode(info); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(w, "%4d  %-17s  %s\n", line, info.State, info.Description)
	}
	return scanner.Err()
}

// outcome is the one-line summary printed when a task settles.
func outcome(info state.Info) string {
	switch {
	case info.RequiredAction == state.ActionRetryOrAbort || info.RequiredAction == state.ActionProvideGuidance:
		return "❌ " + info.Description
	case info.State == state.Resumable:
		return "⏸️  " + info.Description
	case info.State == state.Idle:
		return "✅ " + info.Description
	default:
		return fmt.Sprintf("%s: %s", info.State, info.Description)
	}
}

// printState writes the full derived state.
func printState(w io.Writer, info state.Info, mode string) {
	fmt.Fprintf(w, "State:       %s\n", info.State)
	fmt.Fprintf(w, "Action:      %s\n", info.RequiredAction)
	fmt.Fprintf(w, "Description: %s\n", info.Description)
	if info.CurrentAsk != "" {
		fmt.Fprintf(w, "Ask:         %s (ts %d)\n", info.CurrentAsk, info.AskTS)
	}
	if mode != "" {
		fmt.Fprintf(w, "Mode:        %s\n", mode)
	}
}
