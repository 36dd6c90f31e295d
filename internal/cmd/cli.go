package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/reeflective/readline"
	"github.com/spf13/cobra"

	"github.com/inercia/tether/internal/approval"
	"github.com/inercia/tether/internal/client"
	"github.com/inercia/tether/internal/input"
	"github.com/inercia/tether/internal/state"
)

// cliCmd represents the cli command
var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Interactive command-line interface",
	Long: `Start an interactive session with the engine.

Each line you type is submitted as a task. While a task runs, the same
prompt answers the agent's questions and approvals: y approves, n
rejects, anything else is sent as a reply. Ctrl+C cancels the running
task.

When a task stops on a failed request or is interrupted, /retry asks
the agent to carry on, optionally with a reply.

Commands:
  /quit, /exit  - Exit the CLI
  /cancel       - Cancel the current task on the engine
  /retry [text] - Retry or resume the last task
  /state        - Show the session state
  /help         - Show available commands`,
	RunE: runCLI,
}

func init() {
	rootCmd.AddCommand(cliCmd)
}

// slashCommands defines the available slash commands with their descriptions.
var slashCommands = []struct {
	name        string
	description string
}{
	{"/help", "Show available commands"},
	{"/h", "Show available commands (alias)"},
	{"/?", "Show available commands (alias)"},
	{"/quit", "Exit the CLI"},
	{"/exit", "Exit the CLI (alias)"},
	{"/q", "Exit the CLI (alias)"},
	{"/cancel", "Cancel the current task"},
	{"/retry", "Retry or resume the last task"},
	{"/state", "Show the session state"},
}

func runCLI(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT cancels the running task. While a line is being read the
	// editor turns Ctrl+C into an interrupted read instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT)
	defer signal.Stop(sigChan)

	rl := input.NewReadline(func(line []rune, cursor int) readline.Completions {
		return completeInput(string(line), cursor)
	})

	if !quiet {
		fmt.Printf("🚀 Connecting to %s engine\n", cfg.Engine.Type)
	}
	s, err := openSession(ctx, rl)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.waitReady(ctx); err != nil {
		return err
	}

	fmt.Println("\n📝 Type a task and press Enter. Use /help for commands. Tab completes commands.")

	for {
		select {
		case <-sigChan:
			fmt.Println("\n👋 Goodbye!")
			return nil
		case err := <-s.runDone:
			s.runDone <- err
			return fmt.Errorf("engine went away: %w", err)
		default:
		}

		line, err := rl.Ask(ctx, "tether> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, input.ErrInterrupted) {
				fmt.Println("\n👋 Goodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, s.client, line, sigChan); quit {
				return nil
			}
			continue
		}

		fmt.Println() // Add spacing before the agent output
		runTask(ctx, s.client, sigChan, func(ctx context.Context) (state.Info, error) {
			return s.client.SubmitTask(ctx, line)
		})
	}
}

// runTask runs one task to completion, cancelling it on a signal.
func runTask(ctx context.Context, c *client.Client, sigChan <-chan os.Signal, task func(context.Context) (state.Info, error)) {
	type result struct {
		info state.Info
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := task(ctx)
		done <- result{info: info, err: err}
	}()

	for {
		select {
		case r := <-done:
			switch {
			case errors.Is(r.err, client.ErrTaskCancelled):
				fmt.Println("\n🛑 Cancelled")
			case r.err != nil:
				fmt.Printf("\n❌ Error: %v\n", r.err)
			default:
				fmt.Printf("\n%s\n", outcome(r.info))
				if r.info.CurrentAsk.Category().Settles() {
					fmt.Println("💡 Use /retry to continue")
				}
			}
			return
		case <-sigChan:
			if err := c.Cancel(ctx); err != nil {
				fmt.Printf("\n❌ Cancel error: %v\n", err)
			}
		}
	}
}

// handleCommand runs a slash command. It returns true when the CLI
// should exit.
func handleCommand(ctx context.Context, c *client.Client, line string, sigChan <-chan os.Signal) bool {
	parts := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(parts) == 0 {
		fmt.Println("❓ Empty command (use /help for available commands)")
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "quit", "exit", "q":
		fmt.Println("👋 Goodbye!")
		return true
	case "cancel":
		if err := c.Cancel(ctx); err != nil {
			fmt.Printf("❌ Cancel error: %v\n", err)
		} else {
			fmt.Println("🛑 Cancelled")
		}
	case "retry", "resume":
		resp := approval.Approved()
		if reply := strings.Join(parts[1:], " "); reply != "" {
			resp = approval.Replied(reply)
		}
		fmt.Println()
		runTask(ctx, c, sigChan, func(ctx context.Context) (state.Info, error) {
			return c.Resume(ctx, resp)
		})
	case "state":
		printState(os.Stdout, c.State(), c.Mode())
		if pending := c.Pending(); len(pending) > 0 {
			fmt.Printf("Pending asks: %v\n", pending)
		}
	case "help", "h", "?":
		printHelp()
	default:
		fmt.Printf("❓ Unknown command: %s (use /help for available commands)\n", parts[0])
	}
	return false
}

func printHelp() {
	fmt.Println(`
Available commands:
  /quit, /exit, /q  - Exit the CLI
  /cancel           - Cancel the current task on the engine
  /retry [text]     - Retry or resume the last task, optionally with a reply
  /state            - Show the session state
  /help, /h, /?     - Show this help message

Answering the agent:
  y / n             - Approve or reject a command, tool or server request
  1, 2, ...         - Pick a suggested answer to a question
  anything else     - Sent to the agent as your reply

Tips:
  - Ctrl+C cancels the running task, or exits when idle
  - Use up/down arrows for history
  - Use Tab to autocomplete slash commands`)
}

// completeInput provides tab completion for the CLI input.
// It completes slash commands when the input starts with "/".
func completeInput(line string, cursor int) readline.Completions {
	if cursor > len(line) {
		cursor = len(line)
	}
	text := line[:cursor]

	if !strings.HasPrefix(text, "/") {
		return readline.Completions{}
	}

	// Value-description pairs for CompleteValuesDescribed
	var pairs []string
	for _, cmd := range slashCommands {
		if strings.HasPrefix(cmd.name, text) {
			pairs = append(pairs, cmd.name, cmd.description)
		}
	}
	if len(pairs) == 0 {
		return readline.Completions{}
	}

	return readline.CompleteValuesDescribed(pairs...).
		Tag("commands").
		NoSpace('/') // Don't add space after completing partial command
}
