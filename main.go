// bilibook — resumable AI book translator for txt, srt, and markdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bilibook/accumulate"
	"bilibook/book"
	"bilibook/config"
	"bilibook/glossary"
	"bilibook/i18n"
	"bilibook/mdfile"
	"bilibook/openaiapi"
	"bilibook/progress"
	"bilibook/settings"
	"bilibook/srtfile"
	"bilibook/token"
	"bilibook/translator"
	"bilibook/txtfile"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bilibook",
		Short: "Resumable AI translation of books, subtitles, and markdown",
		Long: `bilibook — translate long documents through an OpenAI-compatible model,
one token-bounded batch at a time.

Progress is saved after every batch, so an interrupted job resumes where it
left off. A persistent glossary keeps proper-noun translations consistent
across the whole document.

Supported formats (by extension): .txt, .srt, .md

Commands:
  translate   Translate a document (resumes automatically)
  estimate    Count translatable units and estimated tokens
  glossary    Inspect or edit the proper-noun glossary
  auth        Manage API keys`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newTranslateCmd(),
		newEstimateCmd(),
		newGlossaryCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bilibook version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// document adapters
// ---------------------------------------------------------------------------

// document is what every format adapter provides to the pipeline.
type document interface {
	book.Sequence
	Save(path string, bilingual bool) error
}

// openDocument picks the adapter by file extension.
func openDocument(path string) (document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return srtfile.Load(path)
	case ".md", ".markdown":
		return mdfile.Load(path)
	default:
		return txtfile.Load(path)
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	lang        string
	apiKey      string
	apiURL      string
	models      []string
	sendNum     int
	maxAttempts int
	interval    time.Duration
	noResume    bool
	single      bool
	noGlossary  bool
	glossPath   string
	output      string
	verbose     bool
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate <file>",
		Short: "Translate a document (resumes automatically)",
		Long: `Translate a document through the configured model.

Progress is written to a hidden sidecar next to the document after every
batch; re-running the same command resumes from the last completed batch.
A saved translation identical to its source text is treated as a prior
silent failure and re-translated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(args[0], a)
		},
	}

	cmd.Flags().StringVarP(&a.lang, "lang", "l", "", "Target language (default from config)")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key(s), comma-separated for rotation")
	cmd.Flags().StringVar(&a.apiURL, "api-url", "", "OpenAI-compatible endpoint base URL")
	cmd.Flags().StringSliceVarP(&a.models, "model", "m", nil, "Model rotation list")
	cmd.Flags().IntVar(&a.sendNum, "send-num", 0, "Token budget per batch")
	cmd.Flags().IntVar(&a.maxAttempts, "max-attempts", 0, "Retry attempts per call")
	cmd.Flags().DurationVar(&a.interval, "interval", 0, "Sleep after each successful call")
	cmd.Flags().BoolVar(&a.noResume, "no-resume", false, "Ignore saved progress and retranslate everything")
	cmd.Flags().BoolVar(&a.single, "single", false, "Output translation only (no bilingual text)")
	cmd.Flags().BoolVar(&a.noGlossary, "no-glossary", false, "Disable the proper-noun glossary")
	cmd.Flags().StringVar(&a.glossPath, "glossary", "", "Glossary file path")
	cmd.Flags().StringVarP(&a.output, "output", "o", "", "Output file path")
	cmd.Flags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose logging")

	return cmd
}

func runTranslate(docPath string, a translateArgs) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	keys := settings.ResolveKeys(a.apiKey)
	if len(keys) == 0 {
		return fmt.Errorf("%s (set one with: bilibook auth set <key>)", i18n.T("No API key configured"))
	}

	apiURL := a.apiURL
	if apiURL == "" {
		if stored := settings.Load().BaseURL; stored != "" {
			apiURL = stored
		} else {
			apiURL = cfg.LLM.APIURL
		}
	}
	models := a.models
	if len(models) == 0 {
		models = cfg.LLM.Models
	}
	lang := a.lang
	if lang == "" {
		lang = cfg.Translate.Language
	}
	sendNum := a.sendNum
	if sendNum <= 0 {
		sendNum = cfg.Translate.SendNum
	}
	maxAttempts := a.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = cfg.Translate.MaxAttempts
	}
	interval := a.interval
	if interval == 0 && cfg.Translate.IntervalMS > 0 {
		interval = time.Duration(cfg.Translate.IntervalMS) * time.Millisecond
	}
	single := a.single || cfg.Translate.Single

	var gloss *glossary.Store
	if !a.noGlossary && cfg.Glossary.Enabled {
		path := a.glossPath
		if path == "" {
			path = cfg.Glossary.Path
		}
		if path == "" {
			dir, err := settings.DataDir()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}
			path = filepath.Join(dir, "glossary.json")
		}
		gloss, err = glossary.Open(path, cfg.Glossary.MaxEntries)
		if err != nil {
			return err
		}
		logInfo("glossary: %d terms (%s)", gloss.Len(), gloss.Path())
	}

	doc, err := openDocument(docPath)
	if err != nil {
		return err
	}

	onLog := func(format string, args ...any) {
		if a.verbose {
			logInfo(format, args...)
		}
	}

	engine, err := translator.New(openaiapi.New(apiURL), translator.Options{
		Keys:        keys,
		Models:      models,
		TargetLang:  lang,
		MaxAttempts: maxAttempts,
		Interval:    interval,
		Glossary:    gloss,
		OnLog:       onLog,
		OnError:     logWarning,
	})
	if err != nil {
		return err
	}

	record := progress.Load(docPath)
	acc, err := accumulate.New(engine, record, accumulate.Options{
		Budget: sendNum,
		Resume: !a.noResume,
		OnLog:  onLog,
		OnProgress: func(done, total int) {
			logInfo("progress: %d/%d units", done, total)
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logInfo("translating %s to %s (model %s, budget %d tokens)",
		docPath, lang, engine.Model(), sendNum)

	if err := acc.Run(ctx, doc); err != nil {
		if ctx.Err() != nil {
			logWarning("%s", i18n.T("Translation interrupted — run the same command again to resume"))
			return err
		}
		return fmt.Errorf("translation aborted: %w (progress saved, resume with the same command)", err)
	}

	out := a.output
	if out == "" {
		out = txtfile.OutputPath(docPath)
	}
	if err := doc.Save(out, !single); err != nil {
		return err
	}

	logSuccess("%s: %s", i18n.T("Translation complete"), out)
	logInfo("%s", engine.Summary())
	if gloss != nil {
		logInfo("glossary: %d terms", gloss.Len())
		if gloss.Dropped() > 0 {
			logWarning("glossary at cap: %d new terms dropped", gloss.Dropped())
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// estimate
// ---------------------------------------------------------------------------

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <file>",
		Short: "Count translatable units and estimated tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := openDocument(args[0])
			if err != nil {
				return err
			}
			units, tokens := 0, 0
			for i := 0; i < doc.Len(); i++ {
				src := doc.Source(i)
				if book.IsSpecial(src) {
					continue
				}
				units++
				tokens += token.Estimate(src)
			}
			fmt.Printf("%s\n", args[0])
			fmt.Printf("  translatable units: %d\n", units)
			fmt.Printf("  estimated tokens:   %d\n", tokens)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// glossary
// ---------------------------------------------------------------------------

func newGlossaryCmd() *cobra.Command {
	var glossPath string

	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Inspect or edit the proper-noun glossary",
	}
	cmd.PersistentFlags().StringVar(&glossPath, "glossary", "", "Glossary file path")

	open := func() (*glossary.Store, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		path := glossPath
		if path == "" {
			path = cfg.Glossary.Path
		}
		if path == "" {
			dir, err := settings.DataDir()
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "glossary.json")
		}
		return glossary.Open(path, cfg.Glossary.MaxEntries)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all glossary terms",
			RunE: func(cmd *cobra.Command, args []string) error {
				gloss, err := open()
				if err != nil {
					return err
				}
				for _, e := range gloss.Entries() {
					fmt.Printf("%s → %s\n", e.Term, e.Translation)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show glossary statistics",
			RunE: func(cmd *cobra.Command, args []string) error {
				gloss, err := open()
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", gloss.Path())
				fmt.Printf("  terms:   %d\n", gloss.Len())
				fmt.Printf("  at cap:  %v\n", gloss.AtCap())
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <term> <translation>",
			Short: "Set or correct a term's translation",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				gloss, err := open()
				if err != nil {
					return err
				}
				if err := gloss.Refresh(args[0], args[1]); err != nil {
					return err
				}
				logSuccess("%s → %s", args[0], args[1])
				return nil
			},
		},
	)

	return cmd
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API keys",
	}

	var baseURL string
	setCmd := &cobra.Command{
		Use:   "set <key>[,<key>...]",
		Short: "Store API key(s) for rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := settings.Load()
			creds.Keys = settings.SplitKeys(args[0])
			if baseURL != "" {
				creds.BaseURL = baseURL
			}
			if err := settings.Save(creds); err != nil {
				return err
			}
			logSuccess("stored %d key(s) in %s", len(creds.Keys), settings.FilePath())
			return nil
		},
	}
	setCmd.Flags().StringVar(&baseURL, "api-url", "", "Endpoint base URL to store alongside the keys")

	cmd.AddCommand(
		setCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List stored keys (masked)",
			Run: func(cmd *cobra.Command, args []string) {
				creds := settings.Load()
				if len(creds.Keys) == 0 {
					logInfo("no keys stored")
					return
				}
				for i, k := range creds.Keys {
					fmt.Printf("  #%d %s\n", i+1, settings.MaskKey(k))
				}
				if creds.BaseURL != "" {
					fmt.Printf("  endpoint: %s\n", creds.BaseURL)
				}
			},
		},
		&cobra.Command{
			Use:   "remove",
			Short: "Delete all stored keys",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := settings.Remove(); err != nil {
					return err
				}
				logSuccess("credentials removed")
				return nil
			},
		},
	)

	return cmd
}
