package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job names.
const (
	JobWarmCaches      = "warm_caches"
	JobRefreshSettings = "refresh_settings"
	JobCleanup         = "cleanup"
)

// Warmer refreshes the public cache of one resource.
type Warmer interface {
	Name() string
	Refresh(ctx context.Context) error
}

// SettingsRefresher reloads website settings.
type SettingsRefresher interface {
	Refresh(ctx context.Context) error
}

// WarmCaches refreshes every resource's public cache. Failures are joined
// so one resource does not stop the others.
func WarmCaches(spec string, resources func() []Warmer) Job {
	return Job{
		Name:    JobWarmCaches,
		Spec:    spec,
		Timeout: 2 * time.Minute,
		Run: func(ctx context.Context) error {
			var errs []error
			for _, r := range resources() {
				if err := r.Refresh(ctx); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
				}
			}
			return errors.Join(errs...)
		},
	}
}

// RefreshSettings reloads the cached website settings.
func RefreshSettings(spec string, s SettingsRefresher) Job {
	return Job{
		Name:    JobRefreshSettings,
		Spec:    spec,
		Timeout: 30 * time.Second,
		Run:     s.Refresh,
	}
}

// Cleanup runs housekeeping funcs such as dropping idle rate limiters and
// expired cache entries.
func Cleanup(spec string, tasks ...func()) Job {
	return Job{
		Name: JobCleanup,
		Spec: spec,
		Run: func(ctx context.Context) error {
			for _, task := range tasks {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				task()
			}
			return nil
		},
	}
}
