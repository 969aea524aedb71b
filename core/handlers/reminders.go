package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/cmdbot/core/apperr"
	"github.com/m3rciful/cmdbot/core/chat"
	"github.com/m3rciful/cmdbot/core/command"
	"github.com/m3rciful/cmdbot/core/reminder"
)

func reminders(d Deps) []command.Descriptor {
	return []command.Descriptor{
		{
			Token:       "!remind",
			Usage:       "!remind [time] [message]",
			Description: `Set a reminder (e.g. "!remind 5min coffee break")`,
			Category:    CategoryProductivity,
			Handler:     command.HandlerFunc(d.remind),
		},
		{
			Token:       "!reminders",
			Description: "List your active reminders",
			Category:    CategoryProductivity,
			Handler:     command.HandlerFunc(d.listReminders),
		},
		{
			Token:       "!cancel-reminder",
			Aliases:     []string{"!cancel_reminder"},
			Usage:       "!cancel-reminder [id]",
			Description: "Cancel one of your reminders",
			Category:    CategoryProductivity,
			Handler:     command.HandlerFunc(d.cancelReminder),
		},
	}
}

// reminderOwner is the address reminders are delivered to.
func reminderOwner(msg chat.Message) string {
	if msg.ChatID != "" {
		return msg.ChatID
	}
	return msg.SenderID
}

func (d Deps) remind(ctx context.Context, msg chat.Message, args []string) error {
	now := d.now()
	fireAt, payload, err := reminder.ParseRequest(strings.Join(args, " "), now, d.location())
	if err != nil {
		return err
	}
	id, err := d.Reminders.Create(ctx, reminderOwner(msg), fireAt, payload)
	if err != nil {
		return apperr.Prefix("Error setting reminder: ", err)
	}
	return msg.Reply(ctx, fmt.Sprintf("⏰ Reminder #%d set for %s", id, formatFireAt(fireAt, now, d.location())))
}

func (d Deps) listReminders(ctx context.Context, msg chat.Message, _ []string) error {
	list := d.Reminders.ListForOwner(reminderOwner(msg))
	if len(list) == 0 {
		return msg.Reply(ctx, "You have no active reminders")
	}
	now := d.now()
	var b strings.Builder
	b.WriteString("🔔 Your Reminders:\n\n")
	for _, r := range list {
		fmt.Fprintf(&b, "#%d Time: %s\nMessage: %s\n\n", r.ID, formatFireAt(r.FireAt, now, d.location()), r.Payload)
	}
	return msg.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (d Deps) cancelReminder(ctx context.Context, msg chat.Message, args []string) error {
	if len(args) != 1 {
		return apperr.Validation("Usage: !cancel-reminder [id]\nSee your reminder ids with !reminders")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return apperr.Validation("Reminder id must be a positive number")
	}
	if !d.Reminders.CancelOwned(reminderOwner(msg), id) {
		return apperr.New(apperr.KindState, apperr.CodeReminderNotFound, fmt.Sprintf("Reminder #%d not found", id))
	}
	return msg.Reply(ctx, fmt.Sprintf("🗑️ Reminder #%d cancelled", id))
}

// formatFireAt shows only the clock time for reminders due today.
func formatFireAt(at, now time.Time, loc *time.Location) string {
	at, now = at.In(loc), now.In(loc)
	if at.Year() == now.Year() && at.YearDay() == now.YearDay() {
		return at.Format("15:04:05")
	}
	return at.Format("2006-01-02 15:04")
}
