package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks a fully-defaulted configuration for errors. Struct
// tags cover value-level constraints; cross-field rules (per-backend
// required settings) are checked explicitly.
func Validate(cfg *Config) error {
	v := validator.New()

	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	switch cfg.Store.Type {
	case "fs":
		if cfg.Store.FS.Path == "" {
			return fmt.Errorf("store.fs.path is required when store.type is %q", cfg.Store.Type)
		}
	case "badger":
		if cfg.Store.Badger.Path == "" {
			return fmt.Errorf("store.badger.path is required when store.type is %q", cfg.Store.Type)
		}
	case "s3":
		if cfg.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required when store.type is %q", cfg.Store.Type)
		}
	}

	if cfg.GC.SweepTimeout > 0 && cfg.GC.SweepTimeout <= cfg.GC.InactiveTimeout {
		return fmt.Errorf("gc.sweep_timeout (%s) must exceed gc.inactive_timeout (%s)",
			cfg.GC.SweepTimeout, cfg.GC.InactiveTimeout)
	}

	return nil
}
