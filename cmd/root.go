// Package cmd defines and implements the CLI commands for the opinion-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinion-crawler/internal/app"
	"github.com/JakeFAU/opinion-crawler/internal/config"
	"github.com/JakeFAU/opinion-crawler/internal/crawler"
	"github.com/JakeFAU/opinion-crawler/internal/dispatcher"
	"github.com/JakeFAU/opinion-crawler/internal/logging"
)

// shutdownTimeout bounds App.Close after a command finishes.
const shutdownTimeout = 30 * time.Second

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	RunID() string
	Logger() *zap.Logger
	Targets() []crawler.BrowserTarget
	Run(ctx context.Context) ([]dispatcher.Outcome, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command. The returned function
// closes the application built by PersistentPreRunE, if any; it must run even
// when the command fails, which cobra's post-run hooks do not guarantee.
func newRootCmd() (*cobra.Command, func(context.Context) error) {
	var built App
	cmd := &cobra.Command{
		Use:   "opinion-crawler",
		Short: "Scrapes El País opinion articles across parallel cloud browser sessions.",
		Long: `opinion-crawler opens one remote browser session per configured target,
collects the first opinion articles from El País, translates their titles to
English, downloads cover images and reports words repeated across titles.`,
		SilenceUsage: true,

		// Build the application once and hand it to subcommands through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON); environment variables override it")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newTargetsCmd())

	closeApp := func(ctx context.Context) error {
		if built == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := built.Close(ctx)
		built = nil
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
	return cmd, closeApp
}

// executeRoot runs the command tree and always shuts the application down.
func executeRoot(ctx context.Context, args []string, out io.Writer) error {
	root, closeApp := newRootCmd()
	if out != nil {
		root.SetOut(out)
		root.SetErr(out)
	}
	if args != nil {
		root.SetArgs(args)
	}
	err := root.ExecuteContext(ctx)
	return errors.Join(err, closeApp(ctx))
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := executeRoot(ctx, nil, nil); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
