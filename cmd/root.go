package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teemow/sbginvoice/internal/config"
	"github.com/teemow/sbginvoice/internal/logging"
)

// rootCmd represents the base command for the sbginvoice application
var rootCmd = &cobra.Command{
	Use:   "sbginvoice",
	Short: "Generates the monthly SBG invoice from Google Calendar and emails it",
	Long: `sbginvoice fetches the sessions recorded in a Google Calendar for one month,
writes them to an invoice CSV, renders the PDF invoice with an external
generator, and emails the PDF to the configured recipient.

Configuration is read from the environment, an optional .env file and an
optional YAML file.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	debug      bool
	logJSON    bool
	configFile string
	envFile    string
}

var globals globalOptions

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "sbginvoice version %s\n" .Version}}`)

	os.Args = append(os.Args[:1], withDefaultCommand(os.Args[1:])...)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// withDefaultCommand runs generate when no subcommand is named, including
// invocations that only pass flags such as "-m 10" or "--debug".
func withDefaultCommand(args []string) []string {
	if name, ok := commandWord(args); ok {
		if isSubcommand(name) {
			return args
		}
		return append([]string{"generate"}, args...)
	}
	for _, arg := range args {
		switch arg {
		case "-h", "--help", "-v", "--version":
			return args
		}
	}
	return append([]string{"generate"}, args...)
}

// commandWord returns the first argument that is neither a flag nor a flag
// value. Flags are looked up on the root command and on generate.
func commandWord(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return "", false
		case strings.HasPrefix(arg, "--"):
			name, _, inline := strings.Cut(arg[2:], "=")
			if !inline && flagTakesValue(name, false) {
				i++
			}
		case len(arg) == 2 && arg[0] == '-':
			if flagTakesValue(arg[1:], true) {
				i++
			}
		case strings.HasPrefix(arg, "-"):
			// "-m10" and other combined shorthands carry their value.
		default:
			return arg, true
		}
	}
	return "", false
}

func flagTakesValue(name string, shorthand bool) bool {
	sets := []*pflag.FlagSet{rootCmd.PersistentFlags()}
	for _, c := range rootCmd.Commands() {
		if c.Name() == "generate" {
			sets = append(sets, c.Flags())
		}
	}
	for _, flags := range sets {
		f := flags.Lookup(name)
		if shorthand {
			f = flags.ShorthandLookup(name)
		}
		if f != nil {
			return f.NoOptDefVal == ""
		}
	}
	return false
}

func isSubcommand(name string) bool {
	switch name {
	case "help", "completion":
		return true
	}
	for _, c := range rootCmd.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return true
		}
	}
	return false
}

// newLogger builds the process logger from the persistent flags and installs
// it as the slog default.
func newLogger() *slog.Logger {
	logger := logging.NewLogger(os.Stderr, logging.Options{
		Debug: globals.debug,
		JSON:  globals.logJSON,
	})
	slog.SetDefault(logger)
	return logger
}

func loadConfig(logger *slog.Logger) (config.Config, error) {
	return config.Load(config.LoadOptions{
		ConfigFile: globals.configFile,
		EnvFile:    globals.envFile,
	}, logger)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&globals.debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&globals.logJSON, "log-json", false, "Write logs as JSON")
	flags.StringVar(&globals.configFile, "config", "", "Path to a YAML config file")
	flags.StringVar(&globals.envFile, "env-file", ".env", "Path to a dotenv file read before the environment (ignored if absent)")

	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
}
