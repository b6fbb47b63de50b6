package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/batch"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

var runFlags struct {
	mode        string
	targets     string
	input       string
	headless    bool
	proxy       string
	max         int
	enrich      bool
	related     bool
	performance bool
	archive     bool
	media       bool
	format      string
	lang        string
	output      string
	logLevel    string
}

var runCmd = &cobra.Command{
	Use:   "run --mode <maps|dns|faq|backup> --targets \"a, b\"",
	Short: "Runs one batch in the foreground. Ctrl-C stops it, Enter confirms a solved CAPTCHA.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if runFlags.output != "" {
			cfg.Output.BaseDir = runFlags.output
		}
		// Progress goes to stdout as plain lines; logs only carry warnings.
		cfg.Log.Level = "warn"
		if runFlags.logLevel != "" {
			cfg.Log.Level = runFlags.logLevel
		}
		initLogger(cfg.Log)

		ctl, release, err := batch.NewDefault(cfg, engine.NewReporter(slog.Default()))
		if err != nil {
			return err
		}
		defer release()

		events, cancel := ctl.Reporter().Subscribe(256)
		printed := make(chan struct{})
		go func() {
			defer close(printed)
			printEvents(os.Stdout, events)
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
		go func() {
			for range sigs {
				ctl.Stop()
			}
		}()
		go confirmOnEnter(os.Stdin, ctl)

		req := startRequest(cmd)
		report, err := ctl.Run(cmd.Context(), req)
		cancel()
		<-printed
		if err != nil {
			return err
		}
		if report.OutputPath == "" {
			return fmt.Errorf("batch produced no output file")
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.mode, "mode", "", "scraping mode: maps, dns, faq or backup")
	f.StringVar(&runFlags.targets, "targets", "", "comma-separated queries, domains, URLs or one sitemap URL")
	f.StringVar(&runFlags.input, "input", "", "how to read --targets: query, domain, urls or sitemap (default depends on mode)")
	f.BoolVar(&runFlags.headless, "headless", false, "run the browser without a window")
	f.StringVar(&runFlags.proxy, "proxy", "", "proxy URL for the browser session")
	f.IntVar(&runFlags.max, "max", 0, "max records per target (maps listings, faq questions)")
	f.BoolVar(&runFlags.enrich, "enrich", false, "maps: crawl listing websites for emails and VAT ids")
	f.BoolVar(&runFlags.related, "related", false, "faq: include related searches")
	f.BoolVar(&runFlags.performance, "performance", false, "dns: add a PageSpeed performance score")
	f.BoolVar(&runFlags.archive, "archive", false, "dns: add Wayback Machine history")
	f.BoolVar(&runFlags.media, "media", false, "backup: download page images and video")
	f.StringVar(&runFlags.format, "format", "", "output format: csv, xlsx or sqlite")
	f.StringVar(&runFlags.lang, "lang", "", "interface language for Google surfaces (hl)")
	f.StringVar(&runFlags.output, "output", "", "base output directory")
	f.StringVar(&runFlags.logLevel, "log-level", "", "log level while running (default warn)")
	_ = runCmd.MarkFlagRequired("mode")
	_ = runCmd.MarkFlagRequired("targets")
	rootCmd.AddCommand(runCmd)
}

func startRequest(cmd *cobra.Command) models.StartRequest {
	req := models.StartRequest{
		Mode:    runFlags.mode,
		Targets: runFlags.targets,
		Input:   runFlags.input,
		Options: models.StartOptions{
			Proxy:         runFlags.proxy,
			MaxRecords:    runFlags.max,
			Enrich:        runFlags.enrich,
			Related:       runFlags.related,
			Performance:   runFlags.performance,
			Archive:       runFlags.archive,
			DownloadMedia: runFlags.media,
			OutputFormat:  runFlags.format,
			Language:      runFlags.lang,
		},
	}
	if cmd.Flags().Changed("headless") {
		h := runFlags.headless
		req.Options.Headless = &h
	}
	return req
}

// printEvents writes one line per engine event until events is closed.
func printEvents(w io.Writer, events <-chan engine.Event) {
	for ev := range events {
		switch ev.Kind {
		case engine.EventResetLogs:
		case engine.EventUserAction:
			fmt.Fprintf(w, "%s  >>> %s\n    press Enter once it is solved\n", ev.Time.Format("15:04:05"), ev.Message)
		default:
			fmt.Fprintf(w, "%s  %s\n", ev.Time.Format("15:04:05"), ev.Message)
		}
	}
}

// confirmer is the part of the controller confirmOnEnter needs.
type confirmer interface {
	ConfirmCaptchaResolved() bool
}

// confirmOnEnter resumes a CAPTCHA-suspended run whenever a line is read.
func confirmOnEnter(r io.Reader, c confirmer) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if !c.ConfirmCaptchaResolved() {
			fmt.Println("nothing is waiting for a CAPTCHA")
		}
	}
}
