package capability

import "switchboard/internal/domain"

// Builtins returns the capability descriptors that ship with the
// binary. Declaration order matters: it is the selection tie-break.
func Builtins() []domain.Descriptor {
	return []domain.Descriptor{
		{
			Name:          "shopping-list",
			Version:       "1.0",
			Author:        "switchboard",
			Description:   "Add and remove items on a named list",
			OperationKind: domain.KindAct,
			Triggers: []domain.Trigger{
				{
					Pattern:   `(?i)^add (?P<item>.+?) to (?:my |the )?(?P<list>[\w ]+?) list$`,
					Params:    []string{"item"},
					Operation: "list.add_item",
				},
				{
					Pattern:   `(?i)^(?:remove|delete|take) (?P<item>.+?) (?:from|off) (?:my |the )?(?P<list>[\w ]+?) list$`,
					Params:    []string{"item"},
					Operation: "list.remove_item",
				},
			},
			AllowedOperations: []string{"list.add_item", "list.remove_item"},
			Instructions:      "Maintain the user's named lists. Item names are stored verbatim.",
		},
		{
			Name:          "shopping-list-view",
			Version:       "1.0",
			Author:        "switchboard",
			Description:   "Show the contents of a named list",
			OperationKind: domain.KindRead,
			Triggers: []domain.Trigger{
				{
					Pattern: `(?i)^what(?:'s| is) on (?:my |the )?(?P<list>[\w ]+?) list\??$`,
					Params:  []string{"list"},
				},
				{
					Keywords: []string{"show my list", "show the list"},
				},
			},
			AllowedOperations: []string{"list.get"},
			Instructions:      "Read-only view of the user's named lists.",
		},
		{
			Name:          "reminders",
			Version:       "1.0",
			Author:        "switchboard",
			Description:   "Create reminders",
			OperationKind: domain.KindAct,
			Triggers: []domain.Trigger{
				{
					Pattern: `(?i)^remind me to (?P<text>.+)$`,
					Params:  []string{"text"},
				},
			},
			AllowedOperations: []string{"reminder.add"},
			Instructions:      "Store a reminder for the user.",
		},
		{
			Name:          "reminders-view",
			Version:       "1.0",
			Author:        "switchboard",
			Description:   "Show pending reminders",
			OperationKind: domain.KindRead,
			Triggers: []domain.Trigger{
				{
					Keywords: []string{"my reminders", "list reminders", "show reminders"},
				},
			},
			AllowedOperations: []string{"reminder.list"},
			Instructions:      "Read-only view of the user's reminders.",
		},
	}
}
