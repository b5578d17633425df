package jobs

import (
	"github.com/sirupsen/logrus"
)

// expiredEntryPurger is the cache surface the cleanup job needs
type expiredEntryPurger interface {
	PurgeExpired() int
}

type CacheCleanupJob struct {
	Cache expiredEntryPurger
}

func NewCacheCleanupJob(cache expiredEntryPurger) *CacheCleanupJob {
	return &CacheCleanupJob{Cache: cache}
}

// Run drops expired cache entries and returns how many were removed
func (j *CacheCleanupJob) Run() int {
	removed := j.Cache.PurgeExpired()
	logrus.WithFields(logrus.Fields{
		"component": "CacheCleanupJob",
		"removed":   removed,
	}).Debug("Cache cleanup completed")
	return removed
}
