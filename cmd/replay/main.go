// Command replay runs a recorded pose stream (one JSON frame per line)
// through an exercise session and prints the feedback and the summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/formcoach/internal/coach"
	"github.com/2beens/formcoach/internal/config"
	"github.com/2beens/formcoach/internal/feedback"
	"github.com/2beens/formcoach/internal/formcheck"
	"github.com/2beens/formcoach/internal/logging"
	"github.com/2beens/formcoach/internal/source"
)

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	exerciseID := flag.String("exercise", "bicep_curl", "exercise to evaluate")
	input := flag.String("in", "-", "recorded JSONL pose stream, - for stdin")
	skipInvalid := flag.Bool("skip-invalid", false, "skip malformed lines instead of failing")
	verbose := flag.Bool("v", false, "print every frame result")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logging.Setup(logging.LoggerSetupParams{
		LogToStdout: false,
		LogLevel:    *logLevel,
		Environment: *env,
	})
	// stdout carries the feedback lines and the summary
	log.SetOutput(os.Stderr)

	if err := run(*env, *configPath, *exerciseID, *input, *skipInvalid, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %s\n", err)
		os.Exit(1)
	}
}

func run(env, configPath, exerciseID, input string, skipInvalid, verbose bool) error {
	def := formcheck.BicepCurl()
	if cfg, err := config.Load(env, configPath); err != nil {
		log.Warnf("config not loaded, using built-in exercises: %s", err)
	} else {
		var ok bool
		if def, ok = cfg.Exercise(exerciseID); !ok {
			return fmt.Errorf("%w: %s", coach.ErrUnknownExercise, exerciseID)
		}
	}
	if def.ID != exerciseID {
		return fmt.Errorf("%w: %s", coach.ErrUnknownExercise, exerciseID)
	}

	var in io.ReadCloser = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		in = f
	}
	src := source.NewJSONLSource(in)
	src.SkipInvalid = skipInvalid
	defer func() {
		if err := src.Close(); err != nil {
			log.Warnf("close input: %s", err)
		}
	}()

	registry := coach.NewRegistry(0, nil)
	live, err := registry.Create(def, 0)
	if err != nil {
		return err
	}

	worker := feedback.NewWorker(16, nil, feedback.NewWriterSink(os.Stdout))
	worker.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var observe coach.FrameObserver
	if verbose {
		observe = func(res formcheck.FrameResult) {
			fmt.Printf("#%d count=%.1f phase=%s progress=%.0f angle=%.1f errors=%d\n",
				res.FrameIndex, res.Count, res.Phase, res.Progress, res.PrimaryAngle, len(res.Errors))
		}
	}
	runErr := coach.Run(ctx, src, live, worker, observe)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := worker.Shutdown(shutdownCtx); err != nil {
		log.Warnf("feedback worker shutdown: %s", err)
	}
	if runErr != nil {
		return runErr
	}

	summary, err := live.Finish()
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
