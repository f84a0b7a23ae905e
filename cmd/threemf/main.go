// Command threemf validates 3MF packages and rewrites them with
// copy-on-write semantics.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/threemf/core/sqlite"
	"github.com/FocuswithJustin/threemf/internal/logging"
)

const version = "0.1.0"

// stdout receives command output. Process logs go to stderr.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for threemf.
var CLI struct {
	LogLevel  string `name:"log-level" help:"Process log level (debug, info, warn, error)" default:"warn" env:"THREEMF_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Process log format (json, text)" default:"text" env:"THREEMF_LOG_FORMAT"`

	Validate ValidateCmd `cmd:"" help:"Read and validate packages"`
	Contents ContentsCmd `cmd:"" help:"Print the raw bytes of a package member"`
	Members  MembersCmd  `cmd:"" help:"List package members with content types and digests"`
	Stage    StageCmd    `cmd:"" help:"Replace package members and write the package back"`
	Restore  RestoreCmd  `cmd:"" help:"Stage members from a backup store and write the package back"`
	Export   ExportCmd   `cmd:"" help:"Export package members to a tar.gz or tar.xz archive"`
	History  HistoryCmd  `cmd:"" help:"Show stored validation runs"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// configureLogging installs the process logger from the global flags.
func configureLogging(level, format string) error {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	f, err := logging.ParseFormat(format)
	if err != nil {
		return err
	}
	logging.InitLogger(lvl, f)
	return nil
}

// splitAssignment parses MEMBER=VALUE.
func splitAssignment(s string) (string, string, error) {
	member, value, ok := strings.Cut(s, "=")
	if !ok || member == "" || value == "" {
		return "", "", fmt.Errorf("expected MEMBER=VALUE, got %q", s)
	}
	return member, value, nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "threemf version %s\n", version)
	fmt.Fprintf(stdout, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(stdout, "  sqlite: %s (%s)\n", info.Package, info.DriverType)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("threemf"),
		kong.Description("3MF package validator and copy-on-write rewriter"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	ctx.FatalIfErrorf(configureLogging(CLI.LogLevel, CLI.LogFormat))
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
