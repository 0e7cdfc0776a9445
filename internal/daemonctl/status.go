package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookloom/internal/api"
	"bookloom/internal/config"
)

// ErrStatusAPIDisabled is returned by FetchStatus when status_api is off.
var ErrStatusAPIDisabled = errors.New("status api disabled")

// FetchStatus reads /api/status from the worker's status API.
func FetchStatus(ctx context.Context, cfg *config.Config) (*api.WorkerStatus, error) {
	if !cfg.StatusAPI.Enabled {
		return nil, ErrStatusAPIDisabled
	}
	base := strings.TrimSpace(cfg.StatusAPI.Bind)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, strings.TrimRight(base, "/")+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	if token := cfg.StatusAPI.Token; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query status api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status api.WorkerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}
