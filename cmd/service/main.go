package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/formcoach/internal"
	"github.com/2beens/formcoach/internal/config"
	"github.com/2beens/formcoach/internal/logging"
	"github.com/2beens/formcoach/pkg"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	genClientSecret := flag.Bool("gen-client-secret", false, "print a new client secret and its hash, then exit")
	flag.Parse()

	if *genClientSecret {
		if err := printNewClientSecret(); err != nil {
			fmt.Fprintf(os.Stderr, "generate client secret: %s\n", err)
			os.Exit(1)
		}
		return
	}

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "formcoach-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)
	log.Debugf("exercises loaded: %d", len(cfg.Exercises))

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	clientSecretHash := os.Getenv("FORMCOACH_CLIENT_SECRET_HASH")
	if clientSecretHash == "" {
		log.Errorf("client secret hash not set. use FORMCOACH_CLIENT_SECRET_HASH")
	}

	redisPassword := os.Getenv("FORMCOACH_REDIS_PASS")
	if redisPassword == "" {
		log.Errorf("redis password not set. use FORMCOACH_REDIS_PASS")
	}

	dbUser := os.Getenv("FORMCOACH_DB_USER")
	dbPassword := os.Getenv("FORMCOACH_DB_PASS")
	if dbUser == "" {
		log.Warnln("db user not set, use FORMCOACH_DB_USER and FORMCOACH_DB_PASS")
	}

	if otelServiceName := os.Getenv("OTEL_SERVICE_NAME"); otelServiceName == "" {
		log.Warnln("OTEL_SERVICE_NAME env var not set")
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	if honeycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	if cfg.LiveExercise != "" {
		dirExists, err := pkg.PathExists(cfg.PoseSocketDir, true)
		if err != nil {
			log.Fatalf("check pose socket dir: %s", err)
		}
		if !dirExists {
			if err := os.MkdirAll(cfg.PoseSocketDir, 0o755); err != nil {
				log.Fatalf("create pose socket dir: %s", err)
			}
			log.Printf("pose socket dir created: %s", cfg.PoseSocketDir)
		}
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			VersionInfo:             versionInfo,
			RedisPassword:           redisPassword,
			DBUser:                  dbUser,
			DBPassword:              dbPassword,
			ClientSecretHash:        clientSecretHash,
			HoneycombTracingEnabled: honeycombEnabled,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve(ctx, cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	if err := server.GracefulShutdown(); err != nil {
		log.Errorf("graceful shutdown: %s", err)
	}
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(pkg.BytesToString(stdout)), nil
}

// printNewClientSecret prints a secret for pose clients (X-COACH-TOKEN) and
// the hash to put in FORMCOACH_CLIENT_SECRET_HASH.
func printNewClientSecret() error {
	secret, hash, err := pkg.NewClientSecret()
	if err != nil {
		return err
	}
	fmt.Printf("client secret: %s\nFORMCOACH_CLIENT_SECRET_HASH=%s\n", secret, hash)
	return nil
}
