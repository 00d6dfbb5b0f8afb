package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NicholasJacob1990/iudex0-sub003/config"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/audit"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/judge"
	"github.com/NicholasJacob1990/iudex0-sub003/internal/telemetry"
	"github.com/spf13/cobra"
)

func auditCMD() *cobra.Command {
	var rawPath string
	var formattedPath string
	var docName string
	var modeFlag string
	var outPath string
	var cfgPath string

	var run = &cobra.Command{
		Use:   "audit",
		Short: "Audit one document pair and print the fidelity report",
		Long: "Runs a single fidelity audit without the service: reads the raw and " +
			"formatted texts from disk, calls the configured judge provider and " +
			"prints the final report as JSON. Exits non-zero when the document " +
			"is not approved, so it can gate a pipeline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rawPath == "" || formattedPath == "" {
				return fmt.Errorf("--raw and --formatted are required")
			}
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			mode, err := audit.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(rawPath)
			if err != nil {
				return fmt.Errorf("read raw text: %w", err)
			}
			formatted, err := os.ReadFile(formattedPath)
			if err != nil {
				return fmt.Errorf("read formatted text: %w", err)
			}
			if docName == "" {
				docName = filepath.Base(formattedPath)
			}

			provider, err := judge.New(cfg.Judge.Provider, judge.Options{
				APIKey:          cfg.Judge.APIKey,
				BaseURL:         cfg.Judge.BaseURL,
				Model:           cfg.Judge.Model,
				Timeout:         cfg.Judge.Timeout,
				Temperature:     cfg.Judge.Temperature,
				MaxOutputTokens: cfg.Judge.MaxOutputTokens,
			})
			if err != nil {
				return err
			}
			engine, err := audit.NewEngine(provider, nil, cfg.Audit, telemetry.NewTelemetry(cfg.Telemetry))
			if err != nil {
				return err
			}

			rep := engine.Audit(cmd.Context(), audit.Request{
				DocumentName:  docName,
				RawText:       string(raw),
				FormattedText: string(formatted),
				Mode:          mode,
			})

			payload, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := os.WriteFile(outPath, append(payload, '\n'), 0o644); err != nil {
					return err
				}
			} else {
				fmt.Println(string(payload))
			}

			if !rep.Approved {
				cmd.SilenceUsage = true
				return fmt.Errorf("audit rejected %q: score %.3f, severity %s", docName, rep.Score, rep.Severity)
			}
			return nil
		},
	}
	run.Flags().StringVar(&rawPath, "raw", "", "path to the raw source text")
	run.Flags().StringVar(&formattedPath, "formatted", "", "path to the formatted text under audit")
	run.Flags().StringVar(&docName, "name", "", "document name for the report (default: formatted file name)")
	run.Flags().StringVar(&modeFlag, "mode", "", "audit mode: strict-fidelity or condensed (default from config)")
	run.Flags().StringVar(&outPath, "out", "", "write the report JSON to this file instead of stdout")
	run.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return run
}
