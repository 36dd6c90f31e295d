package acp

import (
	"strings"

	"github.com/coder/acp-go-sdk"

	"github.com/inercia/tether/internal/message"
)

func selected(id acp.PermissionOptionId) acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{
			Selected: &acp.RequestPermissionOutcomeSelected{OptionId: id},
		},
	}
}

// CancelledPermissionResponse returns a cancelled permission response.
func CancelledPermissionResponse() acp.RequestPermissionResponse {
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{Cancelled: &acp.RequestPermissionOutcomeCancelled{}},
	}
}

func isAllow(o acp.PermissionOption) bool {
	return o.Kind == acp.PermissionOptionKindAllowOnce || o.Kind == acp.PermissionOptionKindAllowAlways
}

func isReject(o acp.PermissionOption) bool {
	return strings.HasPrefix(string(o.Kind), "reject")
}

// AutoApprovePermission selects the first allow option, or the first
// option when none allows. Without options the request is cancelled.
func AutoApprovePermission(options []acp.PermissionOption) acp.RequestPermissionResponse {
	for _, o := range options {
		if isAllow(o) {
			return selected(o.OptionId)
		}
	}
	if len(options) > 0 {
		return selected(options[0].OptionId)
	}
	return CancelledPermissionResponse()
}

// AnswerPermission maps an askResponse command onto the agent's options:
// yes picks the first allow option, no the first reject option, and a
// text reply the option whose name or id matches it. Anything else
// cancels the request.
func AnswerPermission(options []acp.PermissionOption, out message.Outbound) acp.RequestPermissionResponse {
	switch out.AskResponse {
	case message.AskResponseYes:
		return AutoApprovePermission(options)
	case message.AskResponseNo:
		for _, o := range options {
			if isReject(o) {
				return selected(o.OptionId)
			}
		}
	case message.AskResponseMessage:
		text := strings.TrimSpace(out.Text)
		for _, o := range options {
			if strings.EqualFold(o.Name, text) || string(o.OptionId) == text {
				return selected(o.OptionId)
			}
		}
	}
	return CancelledPermissionResponse()
}
