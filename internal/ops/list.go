// Package ops provides the builtin operation handlers: the concrete
// downstream endpoints the executor whitelists.
package ops

import (
	"context"
	"fmt"
	"strings"

	"switchboard/internal/domain"
)

const defaultListName = "shopping"

// ListStore is the slice of the durable store the list handlers use.
type ListStore interface {
	AddListItem(ctx context.Context, userID, listName, item string) error
	RemoveListItem(ctx context.Context, userID, listName, item string) (int64, error)
	GetList(ctx context.Context, userID, listName string) ([]string, error)
}

// AddItemHandler implements list.add_item.
type AddItemHandler struct {
	store ListStore
}

func NewAddItemHandler(store ListStore) *AddItemHandler {
	return &AddItemHandler{store: store}
}

func (h *AddItemHandler) Name() string { return "list.add_item" }

func (h *AddItemHandler) Execute(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
	item := strings.TrimSpace(params["item"])
	if item == "" {
		return nil, &domain.ExecError{Kind: domain.ErrParameterInvalid, Detail: "missing parameter: item"}
	}
	list := listName(params)

	if err := h.store.AddListItem(ctx, userID, list, item); err != nil {
		return nil, fmt.Errorf("add list item: %w", err)
	}
	return &domain.ExecutionResult{
		Summary: fmt.Sprintf("Added %q to your %s list.", item, list),
		Data:    map[string]any{"item": item, "list": list},
	}, nil
}

// RemoveItemHandler implements list.remove_item.
type RemoveItemHandler struct {
	store ListStore
}

func NewRemoveItemHandler(store ListStore) *RemoveItemHandler {
	return &RemoveItemHandler{store: store}
}

func (h *RemoveItemHandler) Name() string { return "list.remove_item" }

func (h *RemoveItemHandler) Execute(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
	item := strings.TrimSpace(params["item"])
	if item == "" {
		return nil, &domain.ExecError{Kind: domain.ErrParameterInvalid, Detail: "missing parameter: item"}
	}
	list := listName(params)

	removed, err := h.store.RemoveListItem(ctx, userID, list, item)
	if err != nil {
		return nil, fmt.Errorf("remove list item: %w", err)
	}
	if removed == 0 {
		return &domain.ExecutionResult{
			Summary: fmt.Sprintf("%q was not on your %s list.", item, list),
			Data:    map[string]any{"item": item, "list": list, "removed": int64(0)},
		}, nil
	}
	return &domain.ExecutionResult{
		Summary: fmt.Sprintf("Removed %q from your %s list.", item, list),
		Data:    map[string]any{"item": item, "list": list, "removed": removed},
	}, nil
}

// GetListHandler implements list.get.
type GetListHandler struct {
	store ListStore
}

func NewGetListHandler(store ListStore) *GetListHandler {
	return &GetListHandler{store: store}
}

func (h *GetListHandler) Name() string { return "list.get" }

func (h *GetListHandler) Execute(ctx context.Context, userID string, params map[string]string) (*domain.ExecutionResult, error) {
	list := listName(params)

	items, err := h.store.GetList(ctx, userID, list)
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	if len(items) == 0 {
		return &domain.ExecutionResult{
			Summary: fmt.Sprintf("Your %s list is empty.", list),
			Data:    map[string]any{"list": list, "items": items},
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your %s list:\n", list)
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return &domain.ExecutionResult{
		Summary: strings.TrimRight(b.String(), "\n"),
		Data:    map[string]any{"list": list, "items": items},
	}, nil
}

func listName(params map[string]string) string {
	list := strings.TrimSpace(strings.ToLower(params["list"]))
	if list == "" {
		return defaultListName
	}
	return list
}
