package realtime

import (
	"encoding/json"
	"errors"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

// Error codes carried by outbound error events.
const (
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeForbidden   = "forbidden"
	CodeConflict    = "conflict"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal_error"
)

// inbound is the envelope of every client frame.
type inbound struct {
	Type domain.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

type roomRequest struct {
	ConversationID string `json:"conversationId"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type updateProfileRequest struct {
	Profile services.ProfileUpdate `json:"profile"`
}

// decode unmarshals the data of f into v. Missing data decodes as empty.
func (f inbound) decode(v any) error {
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}

func failure(code, msg string) domain.Event {
	return domain.Event{Type: domain.EventError, Data: domain.EventFailure{Code: code, Message: msg}}
}

// failureFor turns a gateway error into an error event. Unclassified errors
// are reported generically.
func failureFor(err error) domain.Event {
	switch {
	case errors.Is(err, services.ErrValidation):
		return failure(CodeBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		return failure(CodeNotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		return failure(CodeForbidden, err.Error())
	case errors.Is(err, services.ErrConflict):
		return failure(CodeConflict, err.Error())
	default:
		return failure(CodeInternal, "internal error")
	}
}
