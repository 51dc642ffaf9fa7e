package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"tedgrid/internal/grid"
)

// sentryDSNEnv names the variable holding the DSN errors are reported to.
const sentryDSNEnv = "TEDGRID_SENTRY_DSN"

var sentryEnabled bool

// InitSentry initializes the Sentry client with the given DSN
func InitSentry(dsn string) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      getEnvironment(),
		TracesSampleRate: 0.1,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	if user, err := os.UserCacheDir(); err == nil {
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetUser(sentry.User{ID: user})
		})
	}
	sentryEnabled = true
	return nil
}

// initTelemetry turns on error reporting when the user opted in and a DSN is
// configured.
func initTelemetry(settings *Settings) {
	dsn := os.Getenv(sentryDSNEnv)
	if settings == nil || !settings.TelemetryEnabled || dsn == "" {
		return
	}
	if err := InitSentry(dsn); err != nil {
		debugLog("%v\n", err)
		return
	}
	InitBreadcrumbs(100)
}

func getEnvironment() string {
	if _, err := os.Stat(".git"); err == nil {
		return "development"
	}
	if os.Getenv("TEDGRID_ENV") == "dev" {
		return "development"
	}
	return "production"
}

// FlushAndShutdown flushes pending Sentry events and closes the client
func FlushAndShutdown() {
	if sentryEnabled {
		sentry.Flush(5 * time.Second)
	}
}

// reportable filters out errors caused by user input, which are shown in
// the status bar and never reported.
func reportable(err error) bool {
	var verr *grid.ValidationError
	return err != nil && !errors.As(err, &verr) && !errors.Is(err, grid.ErrUnknownRow)
}

// CaptureError sends an error to Sentry along with any pending breadcrumbs
func CaptureError(err error) {
	if !sentryEnabled || !reportable(err) {
		return
	}
	if breadcrumbs != nil {
		breadcrumbs.Flush()
	}
	sentry.CaptureException(err)
}

func CaptureMessage(message string) {
	if !sentryEnabled {
		return
	}
	if breadcrumbs != nil {
		breadcrumbs.Flush()
	}
	sentry.CaptureMessage(message)
}
