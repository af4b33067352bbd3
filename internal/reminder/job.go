package reminder

import (
	"context"
	"fmt"
	"time"

	"aquabot/internal/storage"
	"aquabot/internal/transport"
	"aquabot/internal/triggers"
	logx "aquabot/pkg/logx"
)

// missedFactor is how many silent intervals count as a delivery gap worth
// mentioning to the recipient.
const missedFactor = 3

// waterJob builds the unit of work for one recipient's reminders. The
// closure captures only an immutable snapshot (id plus fallback message);
// everything that can change between registration and fire time is resolved
// from the store when the trigger fires.
func (c *Coordinator) waterJob(p storage.Policy) triggers.Job {
	chatID := p.ChatID
	fallback := p.Message
	return func(ctx context.Context) error {
		return c.runWater(ctx, chatID, fallback)
	}
}

func (c *Coordinator) runWater(ctx context.Context, chatID int64, fallback string) error {
	live, ok, err := c.store.GetPolicy(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	if !ok || !live.Active {
		// Stale fire: the policy went away or was stopped after this
		// trigger was registered. Heal the schedule, deliver nothing.
		removed := c.triggers.RemoveByPrefix(waterPrefix(chatID))
		c.log.Warn("stale fire; schedule healed",
			logx.Int64("chat", chatID), logx.Int("triggers_removed", removed))
		return nil
	}

	msg := live.Message
	if msg == "" {
		msg = fallback
	}
	if notice := c.missedNotice(ctx, live); notice != "" {
		msg += "\n\n" + notice
	}

	if err := c.deliver.SendText(ctx, chatID, msg); err != nil {
		if transport.IsUnreachable(err) {
			// Permanent: stop scheduling for this recipient. Flag first,
			// triggers second, same ordering as Deactivate.
			if _, serr := c.store.SetActive(ctx, chatID, false); serr != nil {
				c.log.Error("deactivating unreachable recipient failed",
					logx.Int64("chat", chatID), logx.Err(serr))
			}
			c.triggers.RemoveByPrefix(waterPrefix(chatID))
			c.log.Info("recipient unreachable; reminders retired",
				logx.Int64("chat", chatID), logx.Err(err))
			return nil
		}
		// Transient: the next scheduled fire retries naturally.
		return fmt.Errorf("deliver to %d: %w", chatID, err)
	}

	if err := c.store.RecordDelivery(ctx, chatID, c.now()); err != nil {
		c.log.Warn("recording delivery failed", logx.Int64("chat", chatID), logx.Err(err))
	}
	return nil
}

// missedNotice returns a short note when the last successful delivery is
// more than missedFactor intervals ago, so a recipient coming back from an
// outage sees the gap acknowledged once instead of a burst of catch-ups.
func (c *Coordinator) missedNotice(ctx context.Context, p storage.Policy) string {
	last, ok, err := c.store.LastDelivery(ctx, p.ChatID)
	if err != nil || !ok {
		return ""
	}
	interval := time.Duration(p.IntervalMinutes) * time.Minute
	gap := c.now().Sub(last)
	if gap <= missedFactor*interval {
		return ""
	}
	missed := int(gap/interval) - 1
	return fmt.Sprintf("Looks like you missed about %d reminders. Have an extra glass!", missed)
}
