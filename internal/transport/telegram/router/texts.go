package router

// User-facing texts.
const (
	textWelcome        = "Welcome! I'm your Study Reminder Bot. 📚\n\nUse /remind to set a reminder or /settings to manage it."
	textAskDays        = "For which days should I set the reminder?"
	textAskPeriod      = "Great. Now, at what time of day?"
	textAskHour        = "Please select a specific time:"
	textCreated        = "✅ Success! Reminder set for the selected days at %s."
	textSaveFailed     = "Sorry, there was an error saving your reminder."
	textTryAgain       = "An error occurred. Please try again."
	textSettings       = "Settings:"
	textAskMessage     = "Please send me the new reminder message you want to use."
	textMessageSaved   = "✅ Your reminder message has been updated!"
	textMessageFailed  = "An error occurred while updating your message."
	textNoReminders    = "You have no active reminders."
	textDeletePrompt   = "Click a reminder to delete it:"
	textDeleted        = "✅ Reminder deleted successfully."
	textDeleteFailed   = "Sorry, that reminder could not be deleted."
	textCancelled      = "Operation cancelled."
	textNothingToStop  = "There is nothing to cancel."
	textExpired        = "This menu has expired. Use /remind to start again."
	textListHeader     = "Your reminders:"
	textUnreadable     = "unreadable reminder"
	textNotReady       = "I'm still starting up. Please try again in a moment."
	textUnknownCommand = "Unknown command. Use /remind to set a reminder or /settings to manage it."
	textUnauthorized   = "unauthorized"
	textBusy           = "busy, try again"

	btnChangeMessage = "✏️ Change Reminder Message"
	btnDeleteList    = "🗑️ View/Delete Reminders"
	btnCancel        = "✖️ Cancel"
)
