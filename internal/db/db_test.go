package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradehook/internal/config"
)

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(config.DBConfig{}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTraceLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapGormLogger{log: zap.New(core), level: gormlogger.Warn}
	stmt := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), stmt, nil)
	l.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	if logs.Len() != 0 {
		t.Fatalf("fast or not-found statements logged: %d", logs.Len())
	}

	l.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	l.Trace(ctx, time.Now(), stmt, errors.New("syntax error"))
	entries := logs.TakeAll()
	if len(entries) != 2 || entries[0].Message != "slow sql" || entries[1].Message != "sql failed" {
		t.Fatalf("entries=%+v", entries)
	}

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), stmt, errors.New("ignored"))
	if logs.Len() != 0 {
		t.Fatalf("silent mode logged")
	}
}

func TestNilHelpers(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := Ping(context.Background(), nil); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := SetTimezone(nil, "UTC"); err != nil {
		t.Fatalf("tz: %v", err)
	}
}
