package config

import (
	"strings"
	"testing"
	"time"
)

func TestJudgeValidate(t *testing.T) {
	cfg := JudgeConfig{Provider: "openai", Model: "gpt-5-mini", Timeout: 30 * time.Second}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	bad := JudgeConfig{Provider: "openai", Timeout: 30 * time.Second}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected validation error for missing model")
	}
}

func TestAuditValidateMode(t *testing.T) {
	cfg := AuditConfig{
		Mode:       "strict-fidelity",
		MaxWorkers: 4,
		MaxRetries: 5,
		Chunking:   ChunkingConfig{MinChars: 4000, MaxChars: 150000, DefaultOverlap: 2000, Utilization: 0.6},
		Thresholds: ThresholdsConfig{StrictMin: 0.95, StrictMax: 1.15, CondensedMin: 0.70},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	cfg.Mode = "lenient"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error for unknown mode")
	}
	if !strings.Contains(err.Error(), "audit.mode") {
		t.Fatalf("expected mode error, got %v", err)
	}
}

func TestChunkingValidate(t *testing.T) {
	cfg := ChunkingConfig{MinChars: 10000, MaxChars: 4000, Utilization: 0.6}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when min exceeds max")
	}

	cfg = ChunkingConfig{MinChars: 4000, MaxChars: 150000, Utilization: 1.2}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for utilization above 1")
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", User: "iudex", Password: "s3cret", DBName: "iudex"}
	dsn := cfg.DSN()
	want := "postgres://iudex:s3cret@db:5432/iudex?sslmode=disable"
	if dsn != want {
		t.Fatalf("expected %q, got %q", want, dsn)
	}

	cfg.URL = "postgres://other"
	if cfg.DSN() != "postgres://other" {
		t.Fatalf("expected explicit url to win, got %q", cfg.DSN())
	}
}

func TestQueueConsumerName(t *testing.T) {
	cfg := QueueConfig{Consumer: "worker-7"}
	if cfg.ConsumerName() != "worker-7" {
		t.Fatalf("expected configured consumer name, got %q", cfg.ConsumerName())
	}

	cfg.Consumer = ""
	if cfg.ConsumerName() == "" {
		t.Fatalf("expected a non-empty fallback consumer name")
	}
}

func TestQueueValidate(t *testing.T) {
	cfg := QueueConfig{Enabled: true, Stream: "iudex.audits"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for missing group")
	}

	cfg.Group = "audit-workers"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	disabled := QueueConfig{Enabled: false}
	if err := disabled.Validate(); err != nil {
		t.Fatalf("disabled queue should not require fields: %v", err)
	}
}
