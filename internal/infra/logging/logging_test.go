package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/John-Robertt/berealx/internal/infra/logging"
	"github.com/m-mizutani/gt"
)

func TestNewWithDifferentLevels(t *testing.T) {
	testCases := []struct {
		level       string
		expectDebug bool
		expectInfo  bool
		expectWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"WARNING", false, false, true},
		{"error", false, false, false},
		{"bogus", false, false, true}, // 回退到 warn
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, buf)

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			out := buf.String()
			check := func(want bool, msg string) {
				if want {
					gt.S(t, out).Contains(msg)
				} else {
					gt.S(t, out).NotContains(msg)
				}
			}
			check(tc.expectDebug, "debug message")
			check(tc.expectInfo, "info message")
			check(tc.expectWarn, "warn message")
			gt.S(t, out).Contains("error message")
		})
	}
}

func TestParseLevel(t *testing.T) {
	lv, ok := logging.ParseLevel("Debug")
	gt.True(t, ok)
	gt.Equal(t, lv, slog.LevelDebug)

	lv, ok = logging.ParseLevel("loud")
	gt.False(t, ok)
	gt.Equal(t, lv, slog.LevelWarn)
}

func TestWithAndFrom(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("debug", buf).With("kind", "memory")

	ctx := logging.With(context.Background(), logger)
	got := logging.From(ctx)
	gt.Equal(t, got, logger)

	got.Info("context message")
	gt.S(t, buf.String()).Contains("context message")
	gt.S(t, buf.String()).Contains("memory")
}

func TestFromUsesDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	custom := logging.New("warn", buf)
	logging.SetDefault(custom)

	got := logging.From(context.Background())
	gt.Equal(t, got, custom)
	got.Warn("warning from default")
	gt.S(t, buf.String()).Contains("warning from default")
}
