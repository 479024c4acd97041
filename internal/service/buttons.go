package service

import (
	"fmt"

	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/tools"
)

const slotIcon = "🕐"

// shortcutResponse turns a tool result into a button response when it can be shown as-is:
// the tool returned actions, or a slot lookup found open times on the requested day.
func shortcutResponse(toolName string, result *domain.ToolResult) (*domain.AgentResponse, bool) {
	if result == nil {
		return nil, false
	}
	if len(result.Actions) > 0 {
		ctx := result.Context
		if ctx == nil {
			ctx = map[string]any{}
		}
		return &domain.AgentResponse{
			Role:         domain.TurnRoleAssistant,
			Type:         domain.ResponseTypeButton,
			Message:      result.Message,
			Actions:      result.Actions,
			DisableInput: true,
			Context:      ctx,
		}, true
	}
	if toolName != tools.ToolGetAvailableSlots || !result.Success {
		return nil, false
	}
	lookup, ok := result.Data.(*domain.SlotLookup)
	if !ok || !lookup.HasSlots() {
		return nil, false
	}
	return slotButtons(lookup), true
}

// slotButtons renders one button per open time plus a way back to the date picker.
func slotButtons(lookup *domain.SlotLookup) *domain.AgentResponse {
	actions := make([]domain.Action, 0, len(lookup.Slots)+1)
	for _, t := range lookup.Slots {
		actions = append(actions, domain.Action{
			ID:    "slot_" + t,
			Label: slotIcon + " " + t,
			Value: domain.ActionValue{Action: "reserve_slot", Date: lookup.Date, Time: t},
			Style: "primary",
			Icon:  slotIcon,
		})
	}
	actions = append(actions, domain.Action{
		ID:    "back_to_dates",
		Label: "← Choose another date",
		Value: domain.ActionValue{Action: "back", Step: "date_selection"},
		Style: "secondary",
	})

	return &domain.AgentResponse{
		Role:         domain.TurnRoleAssistant,
		Type:         domain.ResponseTypeButton,
		Message:      fmt.Sprintf("✨ Here are the available times for %s:", lookup.Date),
		Actions:      actions,
		DisableInput: true,
		Context: map[string]any{
			"step":         "time_selection",
			"selectedDate": lookup.Date,
		},
	}
}

// Welcome returns the main menu shown when a conversation starts.
func Welcome() *domain.AgentResponse {
	return &domain.AgentResponse{
		Role:         domain.TurnRoleAssistant,
		Type:         domain.ResponseTypeButton,
		Message:      "Welcome! I am your booking assistant. What can I do for you?",
		DisableInput: true,
		Actions: []domain.Action{
			{ID: "reserve", Label: "🗓️ Book a slot", Value: domain.ActionValue{Action: "show_calendar", Step: "date_selection"}, Style: "primary"},
			{ID: "modify", Label: "📞 Change a booking", Value: domain.ActionValue{Action: "get_reservations", Step: "modify_selection"}, Style: "primary"},
			{ID: "free_chat", Label: "❓ Ask a question", Value: domain.ActionValue{Action: "free_chat", Step: "free_chat"}, Style: "secondary"},
			{ID: "other_domains", Label: "📋 Other services →", Value: domain.ActionValue{Action: "show_domains", Step: "domain_selection"}, Style: "secondary"},
		},
		Context: map[string]any{
			"step":      "main_menu",
			"canGoBack": false,
		},
	}
}
