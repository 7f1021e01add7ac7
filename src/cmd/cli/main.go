package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"character-hunter/src/config"
	"character-hunter/src/label"
	"character-hunter/src/ledger"
	"character-hunter/src/ocr"
	"character-hunter/src/query"
	"character-hunter/src/resident"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type cliOptions struct {
	configPath string
	datasetDir string
	jsonOutput bool
	verbose    bool
	filePath   string
	ledgerPath string
}

// newRecognizer is replaced in tests.
var newRecognizer = func(lang string) (ocr.Recognizer, func(), error) {
	engine, err := ocr.NewEngine(lang)
	if err != nil {
		return nil, nil, err
	}
	return engine, func() { _ = engine.Close() }, nil
}

func main() {
	if err := runWithArgs(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"hunter-cli"}
	}
	cmd := newRootCmd(&cliOptions{})
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hunter-cli",
		Short:         "Inspect and exercise the character hunter pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Configure logging BEFORE any other operations.
			if opts.verbose {
				log.SetOutput(cmd.ErrOrStderr())
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.datasetDir, "dataset", "", "Dataset directory")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")

	cmd.AddCommand(newParseCmd(opts), newOCRCmd(opts), newStatusCmd(opts), newStatsCmd(opts))
	return cmd
}

func (o *cliOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigPath: o.configPath, DatasetDir: o.datasetDir})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

func newParseCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <query text>",
		Short: "Derive a label from search text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := label.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), l)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subject: %s\nsource: %s\n", l.Subject, l.Source)
			return nil
		},
	}
}

// OCRResult is the --json output of the ocr command.
type OCRResult struct {
	Text       string  `json:"text"`
	Query      string  `json:"query"`
	Confidence string  `json:"confidence,omitempty"`
	Subject    string  `json:"subject,omitempty"`
	LabelFrom  string  `json:"label_source,omitempty"`
	Source     string  `json:"source"`
	Duration   float64 `json:"duration_seconds"`
	CharCount  int     `json:"character_count"`
}

func newOCRCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ocr",
		Short: "Run recognition and query extraction on a saved screenshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			data, err := readInput(opts.filePath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("failed to decode PNG: %w", err)
			}

			rec, closeRec, err := newRecognizer(cfg.TesseractLang)
			if err != nil {
				return fmt.Errorf("failed to initialize OCR: %w", err)
			}
			defer closeRec()

			start := time.Now()
			text, err := rec.Recognize(cmd.Context(), img)
			elapsed := time.Since(start)
			if err != nil && !errors.Is(err, ocr.ErrNoText) {
				return fmt.Errorf("OCR failed: %w", err)
			}

			res := OCRResult{
				Text:      text,
				Query:     query.Extract(text),
				Source:    opts.filePath,
				Duration:  elapsed.Seconds(),
				CharCount: len(text),
			}
			if res.Query != "" {
				res.Confidence = query.AssessConfidence(res.Query).String()
				if l, err := label.Parse(res.Query); err == nil {
					res.Subject, res.LabelFrom = l.Subject, l.Source
				}
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "query: %s\n", res.Query)
			if res.Subject != "" {
				fmt.Fprintf(out, "label: %s\n", label.Label{Subject: res.Subject, Source: res.LabelFrom})
			}
			fmt.Fprintf(out, "---\n%s\n", text)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		return nil, fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return data, nil
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running hunter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()

			port, ok := resident.DetectResident(ctx, cfg.PortStart, cfg.PortEnd)
			if !ok {
				return fmt.Errorf("no running hunter found on ports %d-%d", cfg.PortStart, cfg.PortEnd)
			}
			snap, err := resident.FetchStatus(ctx, port)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			fmt.Fprintln(cmd.OutOrStdout(), snap.Summary())
			return nil
		},
	}
}

func newStatsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-subject capture counts from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.ledgerPath
			if path == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.LedgerPath
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("ledger %s: %w", path, err)
			}
			l, err := ledger.Open(path)
			if err != nil {
				return err
			}
			defer l.Close()

			counts, err := l.Counts()
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), counts)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SUBJECT\tSAVED\tREMOVED")
			for _, c := range counts {
				fmt.Fprintf(tw, "%s\t%d\t%d\n", c.Subject, c.Saved, c.Removed)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&opts.ledgerPath, "ledger", "", "Path to the ledger database")
	return cmd
}
