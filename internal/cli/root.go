// Package cli implements romactl, the operator tool for the locally stored collections.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xtruel/roma-map-revamp/internal/di"
	"github.com/xtruel/roma-map-revamp/internal/platform/config"
	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
)

const (
	defaultDataPath  = "data/roma.db"
	defaultKeyPrefix = "roma_"
)

type options struct {
	dataPath  string
	keyPrefix string
	output    string
	clock     func() time.Time
}

// Option customises the root command.
type Option func(*options)

// WithClock overrides the clock handed to the services.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewRootCommand builds the romactl command tree. Defaults for --data and --prefix come from
// ROMA_LOCAL_DATA_PATH and ROMA_LOCAL_KEY_PREFIX.
func NewRootCommand(opts ...Option) *cobra.Command {
	o := &options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	root := &cobra.Command{
		Use:           "romactl",
		Short:         "Inspect and maintain the fan club collections",
		Long:          "romactl opens the local collection store directly. Stop the API before running commands that write.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.dataPath, "data", envOr("ROMA_LOCAL_DATA_PATH", defaultDataPath), "path of the local store")
	root.PersistentFlags().StringVar(&o.keyPrefix, "prefix", envOr("ROMA_LOCAL_KEY_PREFIX", defaultKeyPrefix), "storage key prefix")
	root.PersistentFlags().StringVarP(&o.output, "output", "o", "table", "output format: table, json or yaml")

	root.AddCommand(
		newStatusCommand(o),
		newSeedCommand(o),
		newListCommand(o),
		newExportCommand(o),
		newResetCommand(o),
	)
	return root
}

// Execute runs romactl with the process arguments.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "romactl:", err)
		os.Exit(1)
	}
}

// session is an opened store with the services mounted on it.
type session struct {
	store     *kvstore.BoltStore
	container *di.Container
}

func (o *options) open(ctx context.Context) (*session, error) {
	store, err := kvstore.OpenBolt(o.dataPath, kvstore.WithOpenTimeout(2*time.Second))
	if err != nil {
		return nil, err
	}
	cfg := config.Config{
		Local: config.LocalConfig{DataPath: o.dataPath, KeyPrefix: o.keyPrefix},
		PSP:   config.PSPConfig{Currency: "eur"},
	}
	container, err := di.NewContainer(ctx, cfg, di.Deps{Store: store, Logger: zap.NewNop(), Clock: o.clock})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &session{store: store, container: container}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

func (o *options) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session, out io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s, cmd.OutOrStdout())
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
