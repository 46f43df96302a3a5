package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/oncoclinic/infusion/internal/config"
	"github.com/oncoclinic/infusion/internal/domain/capacity"
	"github.com/oncoclinic/infusion/internal/domain/duration"
	"github.com/oncoclinic/infusion/internal/platform/db"
)

func TestWriteCapacity(t *testing.T) {
	var buf bytes.Buffer
	writeCapacity(&buf, capacity.Config{
		Consultations: 40,
		Procedures:    20,
		Infusion:      map[duration.Bucket]int{duration.Rapid: 12, duration.Medium: 8},
		OpensAt:       "07:00",
		ClosesAt:      "19:00",
		Weekdays:      []time.Weekday{time.Friday, time.Monday},
	})

	out := buf.String()
	for _, want := range []string{"07:00-19:00", "[Mon Fri]", "consultations: 40", "procedures:    20"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Count(out, "infusion ") != 4 {
		t.Errorf("expected one line per bucket:\n%s", out)
	}
}

func TestWriteMigrationStatus(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	writeMigrationStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_core.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_indexes.sql"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(lines))
	}
	if !strings.Contains(lines[1], "applied") || !strings.Contains(lines[1], "2026-03-02 08:00:00") {
		t.Errorf("unexpected applied row %q", lines[1])
	}
	if !strings.Contains(lines[2], "pending") {
		t.Errorf("unexpected pending row %q", lines[2])
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("production", &buf)
	logger.Info().Str("component", "agenda").Msg("ready")

	if !strings.Contains(buf.String(), `"component":"agenda"`) {
		t.Errorf("expected JSON output, got %s", buf.String())
	}
}

func TestJWTConfig(t *testing.T) {
	cfg := &config.Config{AuthSigningKey: "secret", AuthIssuer: "clinic", AuthAudience: "agenda"}
	got := jwtConfig(cfg)
	if string(got.SigningKey) != "secret" || got.Issuer != "clinic" || got.Audience != "agenda" {
		t.Errorf("unexpected jwt config %+v", got)
	}

	opts := poolOptions(&config.Config{DBMaxConns: 10, ClinicTimezone: "America/Sao_Paulo"})
	if opts.MaxConns != 10 || opts.TimeZone != "America/Sao_Paulo" {
		t.Errorf("unexpected pool options %+v", opts)
	}
}
