package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds the gateway configuration, loaded from flags, the
// environment (S3GATE_ prefix) and an optional config file.
type Config struct {
	Addr        string   `mapstructure:"addr"`
	LogLevel    string   `mapstructure:"log-level"`
	Environment string   `mapstructure:"environment"`
	CORSOrigins []string `mapstructure:"cors-origins"`
	JWTSecret   string   `mapstructure:"jwt-secret"`

	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data-dir"`

	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	S3Endpoint    string `mapstructure:"s3-endpoint"`
	AccessKeyID   string `mapstructure:"access-key-id"`
	SecretKey     string `mapstructure:"secret-access-key"`
	IAMUserPrefix string `mapstructure:"iam-user-prefix"`
}

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "s3gate",
	Short: "Multi-tenant object storage gateway",
	Long: `s3gate confines each authenticated tenant to an isolated storage
prefix and issues AWS-style credentials downscoped to exactly that
prefix.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func loadConfig() (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt-secret is required")
	}
	if cfg.Backend != "local" && cfg.Backend != "s3" {
		return nil, fmt.Errorf("backend must be local or s3, got %q", cfg.Backend)
	}
	if cfg.Backend == "s3" && cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required with the s3 backend")
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Environment == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("log-level", "info", "log level")
	serveCmd.Flags().String("environment", "development", "environment name; production enables JSON logs")
	serveCmd.Flags().StringSlice("cors-origins", []string{"http://localhost:3000"}, "allowed CORS origins")
	serveCmd.Flags().String("jwt-secret", "", "secret for verifying bearer tokens")
	serveCmd.Flags().String("backend", "local", "storage backend: local or s3")
	serveCmd.Flags().String("data-dir", "./data", "data directory for the local backend and session state")
	serveCmd.Flags().String("region", "us-east-1", "AWS region for the s3 backend")
	serveCmd.Flags().String("bucket", "", "bucket name for the s3 backend")
	serveCmd.Flags().String("s3-endpoint", "", "custom S3 endpoint (path-style addressing)")
	serveCmd.Flags().String("access-key-id", "", "static AWS access key id (optional)")
	serveCmd.Flags().String("secret-access-key", "", "static AWS secret access key (optional)")
	serveCmd.Flags().String("iam-user-prefix", "s3gate-user-", "name prefix for per-tenant IAM users")
	v.BindPFlags(serveCmd.Flags())

	v.SetEnvPrefix("S3GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
