package waitlist

import (
	"encoding/json"

	"github.com/medflow/waitlist-api/internal/model"
)

func marshalPayload(payload *model.WaitlistEventPayload) (json.RawMessage, error) {
	return json.Marshal(payload)
}

// eventForStatus maps a lifecycle transition to its outbound event type.
// Transitions into active have no event; only departures from the queue and
// the initial join are announced.
func eventForStatus(status model.WaitlistStatus) (string, bool) {
	switch status {
	case model.WaitlistStatusInvited:
		return model.EventWaitlistInvited, true
	case model.WaitlistStatusPromoted:
		return model.EventWaitlistPromoted, true
	case model.WaitlistStatusExpired:
		return model.EventWaitlistExpired, true
	case model.WaitlistStatusCancelled:
		return model.EventWaitlistCancelled, true
	}
	return "", false
}
