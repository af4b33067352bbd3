package bot

const (
	textWelcome = "Hi! I'll remind you to drink water every hour between " +
		"%02d:00 and %02d:00.\n\nUse /stop to pause, /resume to continue and " +
		"/remind to add your own reminders. /help shows everything I can do."

	textResumed  = "Reminders are back on. Stay hydrated!"
	textStopped  = "Reminders paused. Send /resume when you want them back."
	textNotSetUp = "You don't have reminders set up yet. Send /start first."

	textHelp = `/start - set up hourly water reminders
/stop - pause all reminders
/resume - continue reminders
/status - your current settings
/setup <start> <end> [minutes] - change your reminder window
/reset - back to the default schedule
/remind HH:MM text - one-off reminder today
/remind YYYY-MM-DD HH:MM text - one-off reminder on a date
/remind daily HH:MM text - repeats every day
/remind weekly <mon..sun> HH:MM text - repeats every week
/reminders - list your reminders
/cancel <id> - delete a reminder`

	textRemindUsage = "I couldn't parse that. Examples:\n" +
		"/remind 18:30 stretch\n" +
		"/remind 2026-01-15 09:00 dentist\n" +
		"/remind daily 22:00 brush teeth\n" +
		"/remind weekly mon 07:30 gym"

	textSetupUsage = "Usage: /setup <start-hour> <end-hour> [interval-minutes]\n" +
		"For example /setup 9 21 or /setup 9 21 30."
	textSetupDone      = "Done! I'll remind you between %02d:00 and %02d:00 every %d minutes."
	textSetupBadWindow = "The end hour can't be before the start hour."
	textResetDone      = "Back to the default schedule: %02d:00-%02d:00 every %d minutes."

	textRemindMissed  = "That time has already passed, so I didn't schedule anything."
	textNoReminders   = "You have no custom reminders. Add one with /remind."
	textCancelUsage   = "Usage: /cancel <id> (ids are listed by /reminders)"
	textCancelMissing = "No reminder with that id."
	textCancelDone    = "Reminder deleted."
	textInternalError = "Something went wrong on my side. Please try again."
)
