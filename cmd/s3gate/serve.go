package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/gorilla/handlers"

	"github.com/s3gate/s3gate/pkg/audit"
	"github.com/s3gate/s3gate/pkg/catalog"
	"github.com/s3gate/s3gate/pkg/credentials"
	"github.com/s3gate/s3gate/pkg/credentials/awscloud"
	"github.com/s3gate/s3gate/pkg/credentials/boltkeys"
	"github.com/s3gate/s3gate/pkg/credentials/localsts"
	"github.com/s3gate/s3gate/pkg/identity"
	"github.com/s3gate/s3gate/pkg/metrics"
	"github.com/s3gate/s3gate/pkg/scope"
	"github.com/s3gate/s3gate/pkg/server"
	"github.com/s3gate/s3gate/pkg/store"
	"github.com/s3gate/s3gate/pkg/store/localstore"
	"github.com/s3gate/s3gate/pkg/store/s3store"
	"github.com/s3gate/s3gate/pkg/upload"
	"github.com/s3gate/s3gate/pkg/upload/boltsession"
)

// backends holds the capability implementations selected by config.
type backends struct {
	raw    store.RawStore
	issuer credentials.Issuer
	keys   credentials.KeyStore
	bucket string
}

func buildBackends(ctx context.Context, cfg *Config) (*backends, error) {
	if cfg.Backend == "local" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, err
		}
		raw, err := localstore.NewStore(filepath.Join(cfg.DataDir, "objects.db"))
		if err != nil {
			return nil, err
		}
		keys, err := boltkeys.NewStore(filepath.Join(cfg.DataDir, "keys.db"))
		if err != nil {
			return nil, err
		}
		return &backends{
			raw:    raw,
			issuer: localsts.NewIssuer([]byte(cfg.JWTSecret)),
			keys:   keys,
			bucket: "local",
		}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &backends{
		raw:    s3store.NewStore(s3Client, cfg.Bucket),
		issuer: awscloud.NewSTSIssuer(sts.NewFromConfig(awsCfg)),
		keys:   awscloud.NewIAMKeyStore(iam.NewFromConfig(awsCfg), cfg.IAMUserPrefix),
		bucket: cfg.Bucket,
	}, nil
}

func serve(cfg *Config) error {
	log := newLogger(cfg)
	auditLog := audit.NewLogger(log)

	ctx := context.Background()
	be, err := buildBackends(ctx, cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}
	sessions, err := boltsession.NewStore(filepath.Join(cfg.DataDir, "sessions.db"))
	if err != nil {
		return err
	}

	gate := scope.NewGate(auditLog)
	m := metrics.New()

	srv := server.New(
		catalog.New(be.raw, gate),
		credentials.NewBroker(be.issuer, be.bucket, auditLog),
		credentials.NewKeyManager(be.keys, be.bucket, auditLog),
		upload.NewCoordinator(be.raw, sessions, gate, auditLog),
		identity.NewVerifier([]byte(cfg.JWTSecret)),
		server.WithMetrics(m),
		server.WithLogger(log),
	)

	handler := srv.Router()
	handler = handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(handler)
	handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)
	handler = handlers.LoggingHandler(log.Writer(), handler)

	log.WithField("addr", cfg.Addr).Info("starting s3gate")
	if cfg.Backend == "local" {
		log.WithField("dataDir", cfg.DataDir).Info("using local backend")
	} else {
		log.WithField("bucket", cfg.Bucket).Info("using s3 backend")
	}
	return http.ListenAndServe(cfg.Addr, handler)
}
