package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"bookloom/internal/config"
	"bookloom/internal/database"
	"bookloom/internal/services/genai"
)

// HealthChecker is implemented by the job and library stores.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (database.Health, error)
}

// NamedStore labels a store for reporting.
type NamedStore struct {
	Name  string
	Store HealthChecker
}

// CheckProvider verifies that the generation API is reachable and the key is
// valid. It uses a 30-second timeout and a single attempt.
func CheckProvider(ctx context.Context, cfg *config.Config) Result {
	const name = "Provider"
	if cfg.Provider.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := genai.NewClient(genai.Config{
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		TextModel:      cfg.Provider.TextModel,
		TimeoutSeconds: cfg.Provider.TimeoutSeconds,
	}, genai.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProviderError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.Provider.BaseURL)}
}

// CheckProviderKey reports whether generation credentials are configured.
func CheckProviderKey(cfg *config.Config) Result {
	const name = "Provider key"
	if err := cfg.RequireProvider(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckStore runs the store's own health check.
func CheckStore(ctx context.Context, store NamedStore) Result {
	if store.Store == nil {
		return Result{Name: store.Name, Detail: "not configured"}
	}
	health, err := store.Store.CheckHealth(ctx)
	if err != nil || !health.Ready() {
		detail := health.Detail()
		if detail == "" && err != nil {
			detail = err.Error()
		}
		return Result{Name: store.Name, Detail: detail}
	}
	detail := fmt.Sprintf("%s schema v%d", health.Driver, health.SchemaVersion)
	if health.Location != "" {
		detail += " at " + health.Location
	}
	return Result{Name: store.Name, Passed: true, Detail: detail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeProviderError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (provider unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (provider unreachable)"
	}
	return err.Error()
}
