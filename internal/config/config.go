package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/2beens/formcoach/internal/formcheck"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`
	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`
	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`
	// prometheus
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
	// coaching
	FramesRateLimitPerMin int    `toml:"frames_rate_limit_per_min"`
	SessionIdleTimeoutSec int    `toml:"session_idle_timeout_sec"`
	FeedbackQueueSize     int    `toml:"feedback_queue_size"`
	PoseSocketDir         string `toml:"pose_socket_dir"`
	PoseSocketFileName    string `toml:"pose_socket_file_name"`
	// LiveExercise, when set, runs a session on frames coming in over the
	// pose socket.
	LiveExercise string `toml:"live_exercise"`

	// Exercises are shared by all environments.
	Exercises []formcheck.Definition `toml:"-"`
}

type Toml struct {
	Development *Config
	Production  *Config
	// decoded per table so absent keys can be told apart from zero values
	Exercises []toml.Primitive `toml:"exercises"`
}

// defaults for tuning keys where zero is a valid setting, applied only when
// the key is absent from the exercise table
var absentKeyDefaults = map[string]func(def *formcheck.Definition){
	"bottom_progress": func(def *formcheck.Definition) {
		def.BottomProgress = formcheck.DefaultBottomProgress
	},
	"transition_margin": func(def *formcheck.Definition) {
		def.TransitionMargin = formcheck.DefaultTransitionMargin
	},
	"cooldown_sec": func(def *formcheck.Definition) {
		def.CooldownSec = formcheck.DefaultCooldown.Seconds()
	},
}

func decodeExercise(md toml.MetaData, p toml.Primitive) (formcheck.Definition, error) {
	var def formcheck.Definition
	if err := md.PrimitiveDecode(p, &def); err != nil {
		return def, err
	}
	var keys map[string]any
	if err := md.PrimitiveDecode(p, &keys); err != nil {
		return def, err
	}
	for key, setDefault := range absentKeyDefaults {
		if _, ok := keys[key]; !ok {
			setDefault(&def)
		}
	}
	return def, nil
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("env %s not configured", env)
	}
	return cfg, nil
}

// Load reads the TOML file and returns the config for env, with the
// exercise definitions defaulted and validated.
func Load(env, path string) (*Config, error) {
	var t Toml
	md, err := toml.DecodeFile(path, &t)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg.Environment == "" {
		cfg.Environment = strings.ToLower(env)
	}

	defs := make([]formcheck.Definition, 0, len(t.Exercises))
	for i, p := range t.Exercises {
		def, err := decodeExercise(md, p)
		if err != nil {
			return nil, fmt.Errorf("decode exercise #%d: %w", i, err)
		}
		defs = append(defs, def)
	}

	exercises, err := prepareExercises(defs)
	if err != nil {
		return nil, err
	}
	cfg.Exercises = exercises

	if cfg.LiveExercise != "" {
		if _, ok := cfg.Exercise(cfg.LiveExercise); !ok {
			return nil, fmt.Errorf("live exercise %s not defined", cfg.LiveExercise)
		}
	}

	return cfg, nil
}

func prepareExercises(defs []formcheck.Definition) ([]formcheck.Definition, error) {
	if len(defs) == 0 {
		return []formcheck.Definition{formcheck.BicepCurl()}, nil
	}

	seen := make(map[string]bool, len(defs))
	var errs []error
	prepared := make([]formcheck.Definition, 0, len(defs))
	for _, def := range defs {
		def = def.WithDefaults()
		if err := def.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[def.ID] {
			errs = append(errs, fmt.Errorf("duplicate exercise id [%s]", def.ID))
			continue
		}
		seen[def.ID] = true
		prepared = append(prepared, def)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return prepared, nil
}

func (c *Config) Exercise(id string) (formcheck.Definition, bool) {
	for _, def := range c.Exercises {
		if def.ID == id {
			return def, true
		}
	}
	return formcheck.Definition{}, false
}
