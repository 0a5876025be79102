package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run commands interactively",
	Long: `Starts an interactive shell. Each line is run as a mahuta command
against services opened once for the whole session. Type exit or press
Ctrl+D to leave.`,
	Args: cobra.NoArgs,
}

func init() {
	// RunE is assigned here rather than in the literal to break the
	// shellCmd -> runShell -> shellCompleter -> shellCmd init cycle.
	shellCmd.RunE = runShell
	rootCmd.AddCommand(shellCmd)
}

// lineReader is the part of readline.Instance the loop uses.
type lineReader interface {
	Readline() (string, error)
}

func runShell(cmd *cobra.Command, _ []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	var history string
	if settingsService != nil {
		history = filepath.Join(filepath.Dir(settingsService.Path()), "history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "mahuta> ",
		HistoryFile:       history,
		AutoComplete:      shellCompleter(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer rl.Close()

	return shellLoop(cmd.Context(), rl, cmd)
}

func shellCompleter() *readline.PrefixCompleter {
	items := []*readline.PrefixCompleter{readline.PcItem("exit"), readline.PcItem("quit")}
	for _, c := range rootCmd.Commands() {
		if c == shellCmd || c.Hidden {
			continue
		}
		children := make([]*readline.PrefixCompleter, 0, len(c.Commands()))
		for _, sub := range c.Commands() {
			children = append(children, readline.PcItem(sub.Name()))
		}
		items = append(items, readline.PcItem(c.Name(), children...))
	}
	return readline.NewPrefixCompleter(items...)
}

// shellLoop runs lines as commands until EOF or exit. Command errors are
// printed and the loop continues.
func shellLoop(ctx context.Context, rl lineReader, cmd *cobra.Command) error {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		args, err := splitArgs(line)
		if err != nil {
			cmd.PrintErrln("Error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "exit", "quit":
			return nil
		case shellCmd.Name():
			cmd.PrintErrln("Error: already in a shell")
			continue
		}

		if err := runLine(ctx, args); err != nil {
			cmd.PrintErrln("Error:", err)
		}
	}
}

// runLine executes one command with its flags reset to their defaults.
func runLine(ctx context.Context, args []string) error {
	target, _, err := rootCmd.Find(args)
	if err != nil {
		return err
	}
	resetFlags(target.Flags())

	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	return rootCmd.ExecuteContext(ctx)
}

func resetFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

// splitArgs splits a line on whitespace, honouring single and double
// quotes and backslash escapes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		escaped bool
		inArg   bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 || escaped {
		return nil, errors.New("unterminated quote or escape")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
