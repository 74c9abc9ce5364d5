package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return errors.New("listen_addr is required")
	}
	if strings.TrimSpace(cfg.Upstream.BaseURL) != "" {
		u, err := url.Parse(cfg.Upstream.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("upstream.base_url is not a valid URL: %q", cfg.Upstream.BaseURL)
		}
	}
	switch cfg.Store.Driver {
	case DriverSQLite:
		if cfg.Store.Path == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.Store.URL == "" {
			return errors.New("store.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported store driver: %q", cfg.Store.Driver)
	}
	if cfg.Security.DevAuthBypass && !cfg.IsDevelopment() {
		return errors.New("security.dev_auth_bypass requires app_env=development")
	}
	return nil
}
