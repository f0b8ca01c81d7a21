package sync

import (
	"context"

	"github.com/nhle/helpdesk-sync/internal/model"
)

// emitTopics emits every forum topic with its forum's name attached.
func (c *cycle) emitTopics(ctx context.Context) {
	topics, err := c.src.ListTopics(ctx)
	if err != nil {
		c.stageFailed("topics", err)
		return
	}

	emitted := 0
	for _, raw := range topics {
		rec, err := c.normalizer.Entity(model.RecordTypeTopic, raw)
		if err != nil {
			c.skip(model.RecordTypeTopic, err)
			continue
		}
		if forumID, ok := raw.Int64("forum_id"); ok {
			if name, ok := c.tables.ForumName(forumID); ok {
				rec.Set("forum_name", name)
			}
		}
		c.emit(ctx, rec)
		emitted++
	}

	c.logger.Info("topics emitted", "count", emitted)
}
