package cache

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultJanitorSchedule sweeps expired entries once a minute.
const DefaultJanitorSchedule = "@every 1m"

// StartJanitor schedules PurgeExpired on store. Expiry stays correct without
// it; the janitor only releases memory held by entries nobody reads again.
// The caller must Stop the returned scheduler.
func StartJanitor(store *Store, schedule string, logger zerolog.Logger) (*cron.Cron, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if removed := store.PurgeExpired(); removed > 0 {
			logger.Debug().
				Int("removed", removed).
				Int("remaining", store.Len()).
				Msg("Cache janitor purged expired entries")
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule cache janitor %q: %w", schedule, err)
	}

	c.Start()
	logger.Info().Str("schedule", schedule).Msg("Cache janitor started")

	return c, nil
}
