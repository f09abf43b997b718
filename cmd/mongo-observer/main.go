package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/katkad/mongo-observer/checkpoint"
	"github.com/katkad/mongo-observer/errors"
	"github.com/katkad/mongo-observer/kafka"
	"github.com/katkad/mongo-observer/log"
	"github.com/katkad/mongo-observer/mongodb"
	"github.com/katkad/mongo-observer/oplog"
	"github.com/katkad/mongo-observer/sink"
)

var (
	cfgFile  string
	logLevel string
	logPath  string
)

var rootCmd = &cobra.Command{
	Use:           "mongo-observer",
	Short:         "Tail a MongoDB oplog and publish typed change events",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Observe the configured namespace until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

type observerConfig struct {
	Namespace      string        `mapstructure:"namespace"`
	Topic          string        `mapstructure:"topic"`
	IdleBackoff    time.Duration `mapstructure:"idle-backoff"`
	CommitInterval int64         `mapstructure:"commit-interval"`
	CommitCount    int64         `mapstructure:"commit-count"`
}

type runConfig struct {
	Mongo    mongodb.Config         `mapstructure:"mongodb"`
	Kafka    kafka.Config           `mapstructure:"kafka"`
	Redis    checkpoint.RedisConfig `mapstructure:"redis"`
	Observer observerConfig         `mapstructure:"observer"`
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./mongo-observer.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", log.InfoLevel, "log level: debug, info or warn")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-path", "", "log directory")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-path", rootCmd.PersistentFlags().Lookup("log-path"))

	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/mongo-observer")
		viper.SetConfigType("yaml")
		viper.SetConfigName("mongo-observer")
	}

	viper.SetEnvPrefix("MONGO_OBSERVER")
	viper.AutomaticEnv()

	viper.SetDefault("observer.idle-backoff", 2*time.Second)
	viper.SetDefault("observer.commit-interval", int64(5000))
	viper.SetDefault("observer.commit-count", int64(256))

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "read config: %v\n", err)
	}
}

func run(parent context.Context) error {
	log.Init(viper.GetString("log-level"), viper.GetString("log-path"))

	var cfg runConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return errors.Annotate(err, "unmarshal config")
	}
	if cfg.Observer.Namespace == "" {
		return errors.New("observer.namespace is required")
	}
	if _, _, err := oplog.SplitNamespace(cfg.Observer.Namespace); err != nil {
		return errors.Trace(err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := cfg.Mongo.Connect(ctx)
	if err != nil {
		return errors.Annotate(err, "connect mongodb")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Errorf("mongodb disconnect err:%v", err)
		}
	}()

	store, err := checkpoint.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return errors.Annotate(err, "connect redis checkpoint store")
	}
	defer store.Close()

	writer, err := kafka.NewWriterClient(cfg.Kafka)
	if err != nil {
		return errors.Annotate(err, "create kafka writer")
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.Errorf("kafka writer close err:%v", err)
		}
	}()

	publisher, err := sink.NewKafka(ctx, writer, cfg.Observer.Topic)
	if err != nil {
		return errors.Trace(err)
	}

	source := oplog.NewTailSource(client)
	start, found, err := store.Load(ctx)
	if err != nil {
		return errors.Annotate(err, "load checkpoint")
	}
	if !found {
		// no stored position: start from the current tail, explicitly
		if start, err = source.Newest(ctx); err != nil {
			return errors.Annotate(err, "read oplog tail position")
		}
		log.Infof("no stored checkpoint, starting from tail ts[%v]", start.Timestamp)
	} else {
		log.Infof("resuming from checkpoint ts[%v]", start.Timestamp)
	}

	committer := checkpoint.NewCommitter(store, checkpoint.CommitterConfig{
		CommitInterval: cfg.Observer.CommitInterval,
		CommitCount:    cfg.Observer.CommitCount,
	})

	var observer *oplog.Observer
	onIdle := func() error {
		select {
		case <-ctx.Done():
			return oplog.ErrStopObservation
		default:
		}
		// commit progress while caught up, then wait for writers
		if err := committer.Flush(ctx, observer.Checkpoint()); err != nil {
			return errors.Trace(err)
		}
		select {
		case <-ctx.Done():
			return oplog.ErrStopObservation
		case <-time.After(cfg.Observer.IdleBackoff):
			return nil
		}
	}

	handler := &committingHandler{inner: publisher, committer: committer, ctx: ctx}
	observer, err = oplog.NewObserver(ctx, source, handler, cfg.Observer.Namespace, start, onIdle)
	if err != nil {
		return errors.Annotate(err, "initialize observer")
	}
	defer func() {
		if err := observer.Close(context.Background()); err != nil {
			log.Errorf("observer close err:%v", err)
		}
	}()

	log.Infof("observing ns[%s] topic[%s]", cfg.Observer.Namespace, cfg.Observer.Topic)
	err = observer.Observe(ctx)

	// persist the final position on every exit path
	if flushErr := committer.Flush(context.Background(), observer.Checkpoint()); flushErr != nil {
		log.Errorf("final checkpoint flush err:%v", flushErr)
	}

	if errors.Is(err, oplog.ErrStopObservation) {
		log.Infof("observation stopped at ts[%v]", observer.Checkpoint().Timestamp)
		return nil
	}
	return errors.Trace(err)
}

// committingHandler publishes through the inner handler, then feeds the
// entry's timestamp to the committer so the stored checkpoint trails
// delivery by at most the commit granularity.
type committingHandler struct {
	ctx       context.Context
	inner     oplog.OperationHandler
	committer *checkpoint.Committer
}

func (h *committingHandler) OnInsert(entry *oplog.Entry) error {
	return h.dispatch(entry, h.inner.OnInsert)
}

func (h *committingHandler) OnUpdate(entry *oplog.Entry) error {
	return h.dispatch(entry, h.inner.OnUpdate)
}

func (h *committingHandler) OnDelete(entry *oplog.Entry) error {
	return h.dispatch(entry, h.inner.OnDelete)
}

func (h *committingHandler) dispatch(entry *oplog.Entry, fn func(*oplog.Entry) error) error {
	if err := fn(entry); err != nil {
		return err
	}
	cp := oplog.Checkpoint{Timestamp: entry.Timestamp}
	return errors.Trace(h.committer.Advance(h.ctx, cp, false))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mongo-observer: %v\n", err)
		os.Exit(1)
	}
}
