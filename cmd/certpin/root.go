// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	quiet      bool
	debug      bool
	format     string
	outputFile string
	logFormat  string
	configFile string
)

// logLevel controls the global slog level at runtime.
var logLevel = new(slog.LevelVar)

// exitFunc is the function called to exit the program.
// This can be overridden in tests to capture exit calls.
var exitFunc = os.Exit

// config merges flags, CERTPIN_* environment variables and the optional
// --config file. Flags win over the environment, which wins over the file.
// It is rebuilt by newConfig before every command runs.
var config = viper.New()

// Setting keys shared by the client commands.
const (
	keyServiceURL    = "service-url"
	keyMirrorURL     = "mirror-url"
	keyPublicKey     = "public-key"
	keyPublicKeyFile = "public-key-file"
	keyStoreDir      = "store-dir"
	keySQLite        = "sqlite"
	keyIdentifier    = "identifier"
	keyChallenge     = "challenge"
	keyServicePin    = "service-pin"
	keyInsecure      = "insecure"
	keyExpectedCN    = "expected-cn"
	keyFallbackFile  = "fallback-file"
	keyDANEFallback  = "dane-fallback"
	keyDNSServer     = "dns-server"
	keyTimeout       = "timeout"
)

var rootCmd = &cobra.Command{
	Use:   "certpin",
	Short: "Certificate pinning trust store tool",
	Long: `certpin maintains a local store of signed TLS certificate fingerprints
and validates server certificates against it.

Client commands (update, validate, list, reset) read their settings from
flags, CERTPIN_* environment variables or a --config file. The serve command
runs a fingerprint distributor over HTTPS and Noise_NK.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging()
		config = newConfig()
		return loadConfigFile()
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress progress output (errors only)")
	flags.BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	flags.StringVar(&format, "format", "text", "output format (text|json)")
	flags.StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	flags.StringVar(&logFormat, "log-format", "text", "log output format (text|json)")
	flags.StringVar(&configFile, "config", "", "configuration file (yaml, json or toml)")

	flags.String(keyServiceURL, "", "fingerprint service URL (https:// or noise://host:port?key=hex)")
	flags.StringSlice(keyMirrorURL, nil, "fallback service URL tried after --service-url fails (repeatable)")
	flags.String(keyPublicKey, "", "base64 distributor public key (uncompressed P-256 point or PKIX DER)")
	flags.String(keyPublicKeyFile, "", "PEM file holding the distributor public key")
	flags.String(keyStoreDir, "", "directory for the persisted fingerprint database")
	flags.String(keySQLite, "", "SQLite file for the persisted fingerprint database")
	flags.String(keyIdentifier, "", "namespace of the persisted database")
	flags.Bool(keyChallenge, false, "request challenge-signed responses")
	flags.StringSlice(keyServicePin, nil, "SPKI pin of the fingerprint service TLS key (repeatable)")
	flags.Bool(keyInsecure, false, "skip TLS verification of the fingerprint service")
	flags.StringSlice(keyExpectedCN, nil, "restrict trusted verdicts to these common names (repeatable)")
	flags.String(keyFallbackFile, "", "JSON file with bundled fallback entries")
	flags.String(keyDANEFallback, "", "host[:port] whose DANE-EE TLSA records become fallback entries")
	flags.String(keyDNSServer, "", "DNS resolver for DANE lookups (default: resolv.conf)")
	flags.Duration(keyTimeout, defaultTimeout, "network timeout")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(daneCmd)
}

// newConfig returns a viper instance bound to the root persistent flags and,
// under the "serve." prefix, to the serve flags. CERTPIN_SERVE_LISTEN thus
// maps to serve.listen.
func newConfig() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CERTPIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	v.SetDefault(keyTimeout, defaultTimeout)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = v.BindPFlag(f.Name, f)
	})
	serveCmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(serveKeyPrefix+f.Name, f)
	})
	return v
}

// loadConfigFile reads --config into the global configuration.
func loadConfigFile() error {
	if configFile == "" {
		return nil
	}
	config.SetConfigFile(configFile)
	if err := config.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrInvalidInput, configFile, err)
	}
	slog.Debug("configuration loaded", "path", config.ConfigFileUsed())
	return nil
}

// initLogging configures the global slog logger based on CLI flags.
//
//	--debug: LevelDebug with source location
//	default: LevelInfo
//	--quiet: LevelError (only errors shown)
//
// --debug takes precedence over --quiet.
func initLogging() {
	switch {
	case debug:
		logLevel.Set(slog.LevelDebug)
	case quiet:
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: debug,
	}

	handlers := map[string]func(io.Writer, *slog.HandlerOptions) slog.Handler{
		"text": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) },
		"json": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) },
	}

	factory, ok := handlers[logFormat]
	if !ok {
		factory = handlers["text"]
	}
	slog.SetDefault(slog.New(factory(os.Stderr, opts)))
}

// writeOutput writes data to the configured output file or stdout.
func writeOutput(data []byte) error {
	if outputFile != "" {
		if err := os.WriteFile(outputFile, data, 0600); err != nil {
			return fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		slog.Info("written to file", "path", outputFile, "bytes", len(data))
		return nil
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrFileOperation, err)
	}
	return nil
}

// printResult writes v as indented JSON when --format=json, otherwise text.
func printResult(v any, text string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		return writeOutput(append(data, '\n'))
	case "text", "":
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return writeOutput([]byte(text))
	default:
		return fmt.Errorf("%w: unsupported --format %q", ErrInvalidInput, format)
	}
}

// renderTable formats rows as borderless, left-aligned columns.
func renderTable(header []string, rows [][]string) string {
	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
	return b.String()
}
