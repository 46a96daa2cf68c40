package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"switchboard/internal/domain"
	"switchboard/internal/store"
)

// ReminderStore is the slice of the durable store the reminder handlers use.
type ReminderStore interface {
	AddReminder(ctx context.Context, userID, text string, dueAt *time.Time) error
	ListReminders(ctx context.Context, userID string) ([]store.Reminder, error)
}

// AddReminderHandler implements reminder.add.
type AddReminderHandler struct {
	store ReminderStore
}

func NewAddReminderHandler(store ReminderStore) *AddReminderHandler {
	return &AddReminderHandler{store: store}
}

func (h *AddReminderHandler) Name() string { return "reminder.add" }

func (h *AddReminderHandler) Execute(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
	text := strings.TrimSpace(params["text"])
	if text == "" {
		return nil, &domain.ExecError{Kind: domain.ErrParameterInvalid, Detail: "missing parameter: text"}
	}

	var dueAt *time.Time
	if due := strings.TrimSpace(params["due"]); due != "" {
		t, err := time.Parse(time.RFC3339, due)
		if err != nil {
			return nil, &domain.ExecError{Kind: domain.ErrParameterInvalid, Detail: fmt.Sprintf("invalid due time %q (want RFC3339)", due)}
		}
		dueAt = &t
	}

	if err := h.store.AddReminder(ctx, userID, text, dueAt); err != nil {
		return nil, fmt.Errorf("add reminder: %w", err)
	}
	return &domain.ExecutionResult{
		Summary: fmt.Sprintf("I'll remind you to %s.", text),
		Data:    map[string]any{"text": text},
	}, nil
}

// ListRemindersHandler implements reminder.list.
type ListRemindersHandler struct {
	store ReminderStore
}

func NewListRemindersHandler(store ReminderStore) *ListRemindersHandler {
	return &ListRemindersHandler{store: store}
}

func (h *ListRemindersHandler) Name() string { return "reminder.list" }

func (h *ListRemindersHandler) Execute(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
	reminders, err := h.store.ListReminders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	if len(reminders) == 0 {
		return &domain.ExecutionResult{
			Summary: "You have no reminders.",
			Data:    map[string]any{"count": 0},
		}, nil
	}

	var b strings.Builder
	b.WriteString("Your reminders:\n")
	for _, r := range reminders {
		if r.DueAt != nil {
			fmt.Fprintf(&b, "- %s (due %s)\n", r.Text, r.DueAt.Format(time.RFC1123))
		} else {
			fmt.Fprintf(&b, "- %s\n", r.Text)
		}
	}
	return &domain.ExecutionResult{
		Summary: strings.TrimRight(b.String(), "\n"),
		Data:    map[string]any{"count": len(reminders)},
	}, nil
}
