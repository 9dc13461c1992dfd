package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/sxsearch/pkg/app"
	"github.com/pario-ai/sxsearch/pkg/config"
	"github.com/pario-ai/sxsearch/pkg/logging"
	"github.com/pario-ai/sxsearch/pkg/present"
)

// globals holds the persistent flags.
type globals struct {
	configPath string
	output     string
	debug      bool
}

func (g *globals) path() string {
	if g.configPath != "" {
		return g.configPath
	}
	return config.DefaultPath()
}

// load reads the config file, applies host overrides and flags, and sets
// up logging.
func (g *globals) load() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.LoadOptional(g.path())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if g.output != "" {
		cfg.Output = g.output
	}
	if g.debug {
		cfg.Log.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:     cfg.Log.Level,
		FilePath:  cfg.LogPath(),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		MaxFiles:  cfg.Log.MaxFiles,
		Stderr:    cfg.Log.Stderr,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, cleanup, nil
}

// runtime wires the full stack. The returned cleanup must be called.
func (g *globals) runtime() (*app.Runtime, *config.Config, func(), error) {
	cfg, logger, cleanupLog, err := g.load()
	if err != nil {
		return nil, nil, nil, err
	}
	rt, err := app.Build(cfg, g.path(), logger)
	if err != nil {
		cleanupLog()
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close runtime", slog.String("error", err.Error()))
		}
		cleanupLog()
	}
	return rt, cfg, cleanup, nil
}

// dispatch runs one action and writes its result. Interactive actions
// always answer with feedback, rendering failures as an error item.
func (g *globals) dispatch(cmd *cobra.Command, action app.Action, args app.Args) error {
	rt, cfg, cleanup, err := g.runtime()
	if err != nil {
		if action.Interactive() {
			return render(cmd, g.outputMode(), present.Feedback{Items: []present.Item{present.ErrorItem(err)}})
		}
		return err
	}
	defer cleanup()

	out, err := rt.Dispatch(cmd.Context(), action, args)
	if action.Interactive() {
		if err != nil {
			slog.Error("action failed", slog.String("action", action.String()), slog.String("error", err.Error()))
			out.Feedback = present.Feedback{Rerun: out.Feedback.Rerun, Items: []present.Item{present.ErrorItem(err)}}
		}
		return render(cmd, cfg.Output, out.Feedback)
	}
	if err != nil {
		return err
	}
	if out.Message != "" {
		fmt.Fprintln(cmd.OutOrStdout(), out.Message)
	}
	return nil
}

func (g *globals) outputMode() string {
	if g.output != "" {
		return g.output
	}
	return "auto"
}

func render(cmd *cobra.Command, mode string, fb present.Feedback) error {
	w := cmd.OutOrStdout()
	return present.Select(mode, w).Render(w, fb)
}
