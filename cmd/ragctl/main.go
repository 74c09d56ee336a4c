package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/katakuxiko/ragdocs/internal/app"
	"github.com/katakuxiko/ragdocs/internal/config"
	"github.com/katakuxiko/ragdocs/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOpts struct {
	tenant  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Индексация документов и вопросы к ним без HTTP-сервера",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.tenant, "tenant", "t", "", "tenant id (по умолчанию DEFAULT_TENANT)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "писать логи в stderr")

	root.AddCommand(newIngestCmd(opts), newAskCmd(opts), newModelsCmd(opts))
	return root
}

func build(ctx context.Context, opts *rootOpts) (*app.App, *logger.Logger, error) {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.Nop()
	if opts.verbose {
		l, err := logger.New(cfg.LogMode)
		if err != nil {
			return nil, nil, err
		}
		log = l
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newIngestCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Загрузить документы (pdf, docx, html, txt)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, log, err := build(ctx, opts)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				res, err := a.RAG.Ingest(ctx, data, path, opts.tenant)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				if err := printJSON(cmd, res); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newAskCmd(opts *rootOpts) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Задать вопрос по загруженным документам",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, log, err := build(ctx, opts)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			ans, err := a.RAG.Ask(ctx, args[0], opts.tenant, k)
			if err != nil {
				return err
			}
			return printJSON(cmd, ans)
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 4, "сколько чанков брать в контекст")
	return cmd
}

func newModelsCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Список моделей провайдера",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, log, err := build(ctx, opts)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			models, err := a.LLM.ListModels(ctx)
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			}
			return nil
		},
	}
}
