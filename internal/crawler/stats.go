package crawler

import "time"

func (c *crawler) collectStats(duration time.Duration) Stats {
	stats := c.stats
	for _, r := range c.frontier.records {
		switch r.Kind {
		case KindInternalPage:
			stats.UniqueInternalPages++
		case KindInternalAsset:
			stats.UniqueAssets++
		case KindExternal:
			stats.UniqueExternalLinks++
		}
	}
	stats.Duration = duration
	return stats
}
