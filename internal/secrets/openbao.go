package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

var ErrSecretNotFound = errors.New("openbao secret path not found")

// Bootstrap reads a KV v2 secret from OpenBao and exports every string
// entry as an environment variable, so ODOO_* and AMALKITA_DB_* can live
// in the vault instead of the deployment manifest. When OPENBAO_ADDR,
// OPENBAO_TOKEN, or OPENBAO_SECRET_PATH is unset this is a no-op.
func Bootstrap(ctx context.Context) error {
	cfg := fromEnv()
	if !cfg.enabled {
		return nil
	}

	kv, err := fetch(ctx, cfg)
	if err != nil {
		return err
	}
	for k, v := range kv {
		_ = os.Setenv(k, v)
	}
	return nil
}

type baoConfig struct {
	addr       string
	token      string
	mount      string
	secretPath string
	namespace  string
	enabled    bool
}

func fromEnv() baoConfig {
	addr := strings.TrimSpace(os.Getenv("OPENBAO_ADDR"))
	token := os.Getenv("OPENBAO_TOKEN")
	secretPath := strings.Trim(strings.TrimSpace(os.Getenv("OPENBAO_SECRET_PATH")), "/")
	if addr == "" || token == "" || secretPath == "" {
		return baoConfig{}
	}

	mount := strings.Trim(strings.TrimSpace(os.Getenv("OPENBAO_MOUNT")), "/")
	if mount == "" {
		mount = "secret"
	}

	return baoConfig{
		addr:       strings.TrimRight(addr, "/"),
		token:      token,
		mount:      mount,
		secretPath: secretPath,
		namespace:  strings.TrimSpace(os.Getenv("OPENBAO_NAMESPACE")),
		enabled:    true,
	}
}

func fetch(ctx context.Context, cfg baoConfig) (map[string]string, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s", cfg.addr, cfg.mount, cfg.secretPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create OpenBao request: %w", err)
	}
	req.Header.Set("X-Vault-Token", cfg.token)
	if cfg.namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.namespace)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call OpenBao: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrSecretNotFound
	default:
		return nil, fmt.Errorf("openbao request failed: status=%d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode OpenBao response: %w", err)
	}

	out := make(map[string]string, len(payload.Data.Data))
	for k, v := range payload.Data.Data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case float64:
			out[k] = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
		default:
			// non-scalar entries are skipped rather than failing bootstrap
		}
	}
	return out, nil
}
