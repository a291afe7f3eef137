// Package cmd implements the renderbridge CLI commands.
//
// A root command dispatches to subcommands (serve, send, watch, decode,
// encode) registered from their own files.
package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

// Output streams, replaced in tests.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Command represents a CLI command.
type Command struct {
	Name  string
	Short string
	Long  string
	Usage string
	Run   func(args []string) error
}

var rootCmd = &Command{
	Name:  "renderbridge",
	Short: "renderbridge - render command bridge",
	Long: `renderbridge carries DOM commands from a native render manager to a
render delegate and sends events and promise callbacks back.

Use "renderbridge <command> --help" for more information about a command.`,
	Usage: "renderbridge <command> [flags]",
}

// Commands registered with the CLI, in registration order.
var (
	commands     = make(map[string]*Command)
	commandOrder []*Command
)

// RegisterCommand adds a command to the CLI.
func RegisterCommand(cmd *Command) {
	commands[cmd.Name] = cmd
	commandOrder = append(commandOrder, cmd)
}

// Execute runs the CLI with the process arguments.
func Execute() error {
	return run(os.Args[1:])
}

func run(args []string) error {
	if len(args) == 0 {
		printHelp()
		return nil
	}

	switch args[0] {
	case "-h", "--help", "help":
		printHelp()
		return nil
	case "-v", "--version", "version":
		fmt.Fprintf(stdout, "renderbridge version %s (built %s)\n", Version, BuildTime)
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", args[0])
		printHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}

	cmdArgs := args[1:]
	for _, arg := range cmdArgs {
		if arg == "-h" || arg == "--help" {
			printCommandHelp(cmd)
			return nil
		}
	}
	return cmd.Run(cmdArgs)
}

func printHelp() {
	fmt.Fprintln(stdout, rootCmd.Long)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintf(stdout, "  %s\n", rootCmd.Usage)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Commands:")
	for _, sub := range commandOrder {
		fmt.Fprintf(stdout, "  %-10s %s\n", sub.Name, sub.Short)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Flags:")
	fmt.Fprintln(stdout, "  -h, --help       Show help for a command")
	fmt.Fprintln(stdout, "  -v, --version    Show version information")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Examples:")
	fmt.Fprintln(stdout, "  renderbridge serve --network grpc        Serve commands over gRPC")
	fmt.Fprintln(stdout, "  renderbridge decode --base64 payload.txt Print a payload as JSON")
}

func printCommandHelp(cmd *Command) {
	fmt.Fprintln(stdout, cmd.Long)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintf(stdout, "  %s\n", cmd.Usage)
}

// flags holds parsed "--name value", "--name=value" and "--switch"
// arguments. Positional arguments are kept in order.
type flags struct {
	values map[string]string
	set    map[string]bool
	args   []string
}

// parseFlags accepts the named value flags and boolean switches and rejects
// anything else that starts with "--".
func parseFlags(args []string, valueFlags, switches []string) (*flags, error) {
	f := &flags{values: make(map[string]string), set: make(map[string]bool)}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") || arg == "--" {
			f.args = append(f.args, arg)
			continue
		}
		name, value, hasValue := strings.Cut(arg, "=")
		switch {
		case slices.Contains(switches, name) && !hasValue:
			f.set[name] = true
		case slices.Contains(valueFlags, name):
			if !hasValue {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("%s requires a value", name)
				}
				i++
				value = args[i]
			}
			f.values[name] = value
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	return f, nil
}

func (f *flags) value(name, fallback string) string {
	if v, ok := f.values[name]; ok {
		return v
	}
	return fallback
}
