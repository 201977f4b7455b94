package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/modkernel/internal/app"
	"github.com/felixgeelhaar/modkernel/pkg/observability"
)

var (
	verbose   bool
	logger    *slog.Logger
	container *app.Container
)

type commandContext struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

type commandContextKey struct{}

// errNoContainer is returned by commands run before SetContainer.
var errNoContainer = errors.New("kernel not initialized")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modkernel",
	Short: "modkernel - hot-reloadable module kernel",
	Long: `modkernel hosts modules that publish APIs into a shared registry,
schedules their update tasks in phases every tick and keeps their state in a
typed object store. Modules can be replaced while the kernel runs.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		info := commandContext{
			correlationID: uuid.New(),
			startedAt:     time.Now(),
		}
		ctx = observability.WithCorrelationID(ctx, info.correlationID.String())
		cmd.SetContext(context.WithValue(ctx, commandContextKey{}, info))
		logger.DebugContext(cmd.Context(), "command start", "command", cmd.CommandPath())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		logger.DebugContext(cmd.Context(), "command end",
			"command", cmd.CommandPath(),
			observability.DurationKey, time.Since(info.startedAt).Milliseconds(),
		)
	},
}

// ExecuteContext runs the command tree with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show load counts and generations")
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// SetContainer sets the kernel the commands operate on.
func SetContainer(c *app.Container) {
	container = c
}

// started returns the container with every module loaded and the kernel
// booted.
func started(ctx context.Context) (*app.Container, error) {
	if container == nil {
		return nil, errNoContainer
	}
	if err := container.Start(ctx); err != nil {
		return nil, err
	}
	return container, nil
}
