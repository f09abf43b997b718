package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/katkad/mongo-observer/errors"

	"github.com/segmentio/kafka-go"
)

type Config struct {
	BrokerAddrs []string        `mapstructure:"broker-addrs" toml:"broker-addrs" json:"broker-addrs" yaml:"broker-addrs"`
	CertFile    string          `mapstructure:"cert-file" toml:"cert-file" json:"cert-file" yaml:"cert-file"`
	KeyFile     string          `mapstructure:"key-file" toml:"key-file" json:"key-file" yaml:"key-file"`
	CaFile      string          `mapstructure:"ca-file" toml:"ca-file" json:"ca-file" yaml:"ca-file"`
	VerifySSL   bool            `mapstructure:"verify-ssl" toml:"verify-ssl" json:"verify-ssl" yaml:"verify-ssl"`
	Producer    *ProducerConfig `mapstructure:"producer" toml:"producer" json:"producer" yaml:"producer"`
	Net         *NetConfig      `mapstructure:"net" toml:"net" json:"net" yaml:"net"`
}

type NetConfig struct {
	// SASL based authentication with broker. While there are multiple SASL authentication methods
	// the current implementation is limited to plaintext (SASL/PLAIN) authentication
	SASL SASL `mapstructure:"sasl" toml:"sasl" json:"sasl" yaml:"sasl"`

	DialTimeout  time.Duration `mapstructure:"dial-timeout" toml:"dial-timeout" json:"dial-timeout" yaml:"dial-timeout"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout" toml:"read-timeout" json:"read-timeout" yaml:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout" toml:"write-timeout" json:"write-timeout" yaml:"write-timeout"`
}

type SASL struct {
	Enable   bool   `mapstructure:"enable" toml:"enable" json:"enable" yaml:"enable"`
	User     string `mapstructure:"user" toml:"user" json:"user" yaml:"user"`
	Password string `mapstructure:"password" toml:"password" json:"password" yaml:"password"`
}

type ProducerConfig struct {
	Compression  string        `mapstructure:"compression" toml:"compression" json:"compression" yaml:"compression"`
	BatchSize    int           `mapstructure:"batch-size" toml:"batch-size" json:"batch-size" yaml:"batch-size"`
	BatchTimeout time.Duration `mapstructure:"batch-timeout" toml:"batch-timeout" json:"batch-timeout" yaml:"batch-timeout"`
	// partition strategy: "least-bytes", "round-robin" or "hash"
	PartitionStrategy string `mapstructure:"partition-strategy" toml:"partition-strategy" json:"partition-strategy" yaml:"partition-strategy"`
}

func (c *Config) CreateWriter() (*kafka.Writer, error) {
	if len(c.BrokerAddrs) == 0 {
		return nil, errors.New("kafka config broker-addrs is empty")
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(c.BrokerAddrs...),
		Balancer: c.getBalancer(),
	}

	transport := &kafka.Transport{}
	if c.Net != nil && c.Net.DialTimeout > 0 {
		transport.DialTimeout = c.Net.DialTimeout
	} else {
		transport.DialTimeout = 5 * time.Second
	}

	if c.hasTLSConfig() {
		tlsConfig, err := c.createTlsConfiguration()
		if err != nil {
			return nil, errors.Trace(err)
		}
		transport.TLS = tlsConfig
	}

	if c.Net != nil && c.Net.SASL.Enable {
		mechanism := plain.Mechanism{
			Username: c.Net.SASL.User,
			Password: c.Net.SASL.Password,
		}
		transport.SASL = mechanism
	}

	writer.Transport = transport

	if c.Producer != nil {
		if c.Producer.BatchSize > 0 {
			writer.BatchSize = c.Producer.BatchSize
		}
		if c.Producer.BatchTimeout > 0 {
			writer.BatchTimeout = c.Producer.BatchTimeout
		}
		switch c.Producer.Compression {
		case "gzip":
			writer.Compression = kafka.Gzip
		case "snappy":
			writer.Compression = kafka.Snappy
		case "lz4":
			writer.Compression = kafka.Lz4
		case "zstd":
			writer.Compression = kafka.Zstd
		default:
			writer.Compression = kafka.Snappy
		}
	} else {
		writer.BatchSize = 100
		writer.BatchTimeout = 10 * time.Millisecond
		writer.Compression = kafka.Snappy
	}

	return writer, nil
}

func (c *Config) hasTLSConfig() bool {
	return c.CertFile != "" && c.KeyFile != "" && c.CaFile != ""
}

func (c *Config) createTlsConfiguration() (*tls.Config, error) {
	if !c.hasTLSConfig() {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("LoadX509KeyPair: %v", err)
	}

	caCert, err := os.ReadFile(c.CaFile)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile: %v", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		RootCAs:            caCertPool,
		InsecureSkipVerify: !c.VerifySSL,
	}

	return tlsConfig, nil
}

func (c *Config) getBalancer() kafka.Balancer {
	if c.Producer == nil {
		return &kafka.LeastBytes{}
	}
	switch c.Producer.PartitionStrategy {
	case "round-robin":
		return &kafka.RoundRobin{}
	case "hash":
		return &kafka.Hash{}
	case "least-bytes":
		fallthrough
	default:
		return &kafka.LeastBytes{}
	}
}

func NewWriterClient(config Config) (*WriterClient, error) {
	writer, err := config.CreateWriter()
	if err != nil {
		return nil, err
	}

	return &WriterClient{
		Writer: writer,
		Config: config,
	}, nil
}

type WriterClient struct {
	Writer *kafka.Writer
	Config Config
}

// WriteMessage publishes one message.
func (c *WriterClient) WriteMessage(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	if c.Writer == nil {
		return errors.New("kafka writer is not initialized")
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
	}

	return c.Writer.WriteMessages(ctx, msg)
}

// WriteMessages publishes a batch.
func (c *WriterClient) WriteMessages(ctx context.Context, messages ...kafka.Message) error {
	if c.Writer == nil {
		return errors.New("kafka writer is not initialized")
	}
	return c.Writer.WriteMessages(ctx, messages...)
}

func (c *WriterClient) Close() error {
	var err error
	if c.Writer != nil {
		if closeErr := c.Writer.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

func (c *WriterClient) Stats() kafka.WriterStats {
	if c.Writer != nil {
		return c.Writer.Stats()
	}
	return kafka.WriterStats{}
}
