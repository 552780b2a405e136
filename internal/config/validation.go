package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/revittco/mutacache/internal/mutation"
	"github.com/revittco/mutacache/internal/record"
)

// ValidationError holds all validation failures for a config file.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

// validate checks the parsed config for correctness.
func validate(cfg *FileConfig) error {
	var errs []string

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Sprintf("http.addr: invalid address %q", cfg.HTTP.Addr))
	}
	if _, err := mutation.ParseMode(cfg.Mutation.DefaultMode); err != nil {
		errs = append(errs, fmt.Sprintf("mutation.default_mode: %v", err))
	}
	if cfg.Mutation.GraceWindow <= 0 {
		errs = append(errs, "mutation.grace_window must be positive")
	}
	if cfg.Mutation.AutoConfirm < 0 {
		errs = append(errs, "mutation.auto_confirm must not be negative")
	}
	if cfg.Aggregation.Window < 0 {
		errs = append(errs, "aggregation.window must not be negative")
	}
	if cfg.Cache.MaxEntries <= 0 {
		errs = append(errs, "cache.max_entries must be positive")
	}
	if cfg.Cache.StaleTime < 0 {
		errs = append(errs, "cache.stale_time must not be negative")
	}
	if cfg.Journal.Path == "" {
		errs = append(errs, "journal.path is required")
	}
	if cfg.Journal.Retention < 0 {
		errs = append(errs, "journal.retention must not be negative")
	}
	errs = append(errs, validateResources(cfg.Resources)...)

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func validateLogLevel(l string) error {
	switch strings.ToLower(l) {
	case "debug", "info", "warn", "error", "":
		return nil
	default:
		return fmt.Errorf("invalid log_level %q (must be debug, info, warn, or error)", l)
	}
}

func validateResources(resources map[string][]map[string]any) []string {
	var errs []string
	for name, rows := range resources {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "resources: empty resource name")
			continue
		}
		seen := make(map[string]bool, len(rows))
		for i, row := range rows {
			id, ok := row["id"]
			if !ok || record.IsEmptyID(id) {
				errs = append(errs, fmt.Sprintf("resources.%s[%d]: id is required", name, i))
				continue
			}
			k := record.IDString(id)
			if seen[k] {
				errs = append(errs, fmt.Sprintf("resources.%s[%d]: duplicate id %q", name, i, k))
			}
			seen[k] = true
		}
	}
	return errs
}
