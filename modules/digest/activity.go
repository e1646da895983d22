package digest

import (
	"context"
	"fmt"
	"strconv"

	"errand-bot/pkg/errand"
)

// activityLines take project, project time, language and language time.
var activityLines = []string{
	"Observing some fine %[3]s craftsmanship (%[4]s) in %[1]s (%[2]s)! Most industrious! 🎩",
	"Some splendid %[3]s work (%[4]s) happening in %[1]s (%[2]s)! 🧐",
	"*Adjusts spectacles* Writing %[3]s (%[4]s) in %[1]s (%[2]s)! Most impressive! ⌨️",
	"%[1]s (%[2]s) being polished with %[3]s (%[4]s)! A marvel of modern engineering! 💻",
	"Ah! %[2]s of progress on %[1]s using %[3]s (%[4]s)! Music to my ears! 🎵",
	"*Polishes monocle* What's this? %[2]s spent on %[1]s with %[3]s! How splendid! ✨",
	"Great Scott! %[4]s of %[3]s in %[1]s (%[2]s)! The future is now! 🚀",
}

// checkActivity notifies the owner when today's busiest project or language
// differs from the last one notified. The last notified pair is persisted so
// restarts do not repeat it.
func (m *Module) checkActivity(ctx context.Context) {
	activity, err := m.activity.Today(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.WarnContext(ctx, "coding activity check failed", "error", err)
		}
		return
	}
	if activity.Project == "" || activity.Language == "" {
		return
	}

	current := errand.ActivityFingerprint{
		Project:   activity.Project,
		Language:  activity.Language,
		UpdatedAt: m.now().UTC(),
	}
	previous, err := m.fingerprint.Load(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "load activity fingerprint", "error", err)
		return
	}
	if len(previous) > 0 && previous[len(previous)-1].Same(current) {
		return
	}

	text := fmt.Sprintf(
		activityLines[m.pick(len(activityLines))],
		activity.Project,
		formatDuration(activity.ProjectSeconds),
		activity.Language,
		formatDuration(activity.LanguageSeconds),
	)
	if err := m.sendOwner(ctx, text); err != nil {
		if ctx.Err() == nil {
			m.logger.WarnContext(ctx, "coding activity notification failed", "error", err)
		}
		return
	}

	err = m.fingerprint.Update(ctx, func([]errand.ActivityFingerprint) ([]errand.ActivityFingerprint, error) {
		return []errand.ActivityFingerprint{current}, nil
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "store activity fingerprint", "error", err)
	}
}

// formatDuration renders seconds as "1h 5m" or "5m".
func formatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	}

	return strconv.Itoa(minutes) + "m"
}
