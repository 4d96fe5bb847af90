/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string
	DBBackend   DatabaseBackend
	DBDSN       string
	InstanceID  string
	// LogBufferSize is the number of recent log lines served on /logs; 0 disables it.
	LogBufferSize int

	// HLS window and playout
	HLSMaxSegments      int
	HLSTargetDuration   time.Duration
	SlideInterval       time.Duration
	SaturationThreshold int
	FillerBufferMax     int
	PlayedHistory       int
	KeepCurrentOnHard   bool

	// Scheduler
	SchedulerWorkers    int
	SchedulerQueueSize  int
	SchedulerResolution time.Duration
	ScheduleFile        string
	Stations            []string

	// Redis (leader election, cache)
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	LeaderElectionEnabled bool
	CacheEnabled          bool

	// NATS (event mirror, ingest)
	NATSURL            string
	NATSToken          string
	EventMirrorEnabled bool
	// EventTransport is "nats" or "redis".
	EventTransport     string
	IngestEnabled      bool

	// Object storage. S3 is used when S3Bucket is set, otherwise ChunkStoreDir.
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Prefix          string
	S3UsePathStyle    bool
	ChunkStoreDir     string
	ArchiveEvicted    bool

	// Observability
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"AIRWAVE_ENV", "ENVIRONMENT"}, "development"),
		HTTPBind:    getEnvAny([]string{"AIRWAVE_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"AIRWAVE_HTTP_PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"AIRWAVE_METRICS_BIND"}, "127.0.0.1:9000"),
		DBBackend:   DatabaseBackend(strings.ToLower(getEnvAny([]string{"AIRWAVE_DB_BACKEND"}, string(DatabaseSQLite)))),
		DBDSN:       getEnvAny([]string{"AIRWAVE_DB_DSN"}, "airwave.db"),
		InstanceID:  getEnvAny([]string{"AIRWAVE_INSTANCE_ID"}, ""),

		LogBufferSize: getEnvIntAny([]string{"AIRWAVE_LOG_BUFFER_SIZE"}, 2000),

		HLSMaxSegments:      getEnvIntAny([]string{"AIRWAVE_HLS_MAX_SEGMENTS"}, 30),
		HLSTargetDuration:   getEnvDurationAny([]string{"AIRWAVE_HLS_TARGET_DURATION"}, 10*time.Second),
		SlideInterval:       getEnvDurationAny([]string{"AIRWAVE_SLIDE_INTERVAL"}, 5*time.Second),
		SaturationThreshold: getEnvIntAny([]string{"AIRWAVE_SATURATION_THRESHOLD"}, 50),
		FillerBufferMax:     getEnvIntAny([]string{"AIRWAVE_FILLER_BUFFER_MAX"}, 0),
		PlayedHistory:       getEnvIntAny([]string{"AIRWAVE_PLAYED_HISTORY"}, 2),
		KeepCurrentOnHard:   getEnvBoolAny([]string{"AIRWAVE_KEEP_CURRENT_ON_HARD_INTERRUPT"}, false),

		SchedulerWorkers:    getEnvIntAny([]string{"AIRWAVE_SCHEDULER_WORKERS"}, 4),
		SchedulerQueueSize:  getEnvIntAny([]string{"AIRWAVE_SCHEDULER_QUEUE_SIZE"}, 64),
		SchedulerResolution: getEnvDurationAny([]string{"AIRWAVE_SCHEDULER_RESOLUTION"}, time.Second),
		ScheduleFile:        getEnvAny([]string{"AIRWAVE_SCHEDULE_FILE"}, ""),
		Stations:            getEnvListAny([]string{"AIRWAVE_STATIONS"}),

		RedisAddr:             getEnvAny([]string{"AIRWAVE_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"AIRWAVE_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"AIRWAVE_REDIS_DB"}, 0),
		LeaderElectionEnabled: getEnvBoolAny([]string{"AIRWAVE_LEADER_ELECTION_ENABLED"}, false),
		CacheEnabled:          getEnvBoolAny([]string{"AIRWAVE_CACHE_ENABLED"}, false),

		NATSURL:            getEnvAny([]string{"AIRWAVE_NATS_URL"}, ""),
		NATSToken:          getEnvAny([]string{"AIRWAVE_NATS_TOKEN"}, ""),
		EventMirrorEnabled: getEnvBoolAny([]string{"AIRWAVE_EVENT_MIRROR_ENABLED"}, false),
		EventTransport:     strings.ToLower(getEnvAny([]string{"AIRWAVE_EVENT_TRANSPORT"}, "nats")),
		IngestEnabled:      getEnvBoolAny([]string{"AIRWAVE_INGEST_ENABLED"}, true),

		S3Bucket:          getEnvAny([]string{"AIRWAVE_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Region:          getEnvAny([]string{"AIRWAVE_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:        getEnvAny([]string{"AIRWAVE_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3AccessKeyID:     getEnvAny([]string{"AIRWAVE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"AIRWAVE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Prefix:          getEnvAny([]string{"AIRWAVE_S3_PREFIX"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"AIRWAVE_S3_USE_PATH_STYLE"}, false),
		ChunkStoreDir:     getEnvAny([]string{"AIRWAVE_CHUNK_STORE_DIR"}, "./chunks"),
		ArchiveEvicted:    getEnvBoolAny([]string{"AIRWAVE_ARCHIVE_EVICTED"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"AIRWAVE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"AIRWAVE_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"AIRWAVE_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("AIRWAVE_DB_DSN must be provided")
	}
	if c.HLSMaxSegments <= 0 {
		return fmt.Errorf("AIRWAVE_HLS_MAX_SEGMENTS must be positive, got %d", c.HLSMaxSegments)
	}
	if c.SlideInterval <= 0 {
		return fmt.Errorf("AIRWAVE_SLIDE_INTERVAL must be positive, got %s", c.SlideInterval)
	}
	if c.SchedulerWorkers <= 0 {
		return fmt.Errorf("AIRWAVE_SCHEDULER_WORKERS must be positive, got %d", c.SchedulerWorkers)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("AIRWAVE_TRACING_SAMPLE_RATE must be within [0,1], got %v", c.TracingSampleRate)
	}
	if (c.LeaderElectionEnabled || c.CacheEnabled) && c.RedisAddr == "" {
		return fmt.Errorf("AIRWAVE_REDIS_ADDR is required when leader election or cache is enabled")
	}
	if c.EventTransport != "nats" && c.EventTransport != "redis" {
		return fmt.Errorf("unsupported event transport %q", c.EventTransport)
	}
	if c.EventMirrorEnabled && c.EventTransport == "nats" && c.NATSURL == "" {
		return fmt.Errorf("AIRWAVE_NATS_URL is required when the event mirror uses nats")
	}
	return nil
}

// HTTPAddr returns the bind address of the public listener.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("5s") or bare integer seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// getEnvListAny splits the first set value on commas, dropping blanks.
func getEnvListAny(keys []string) []string {
	raw := getEnvAny(keys, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
