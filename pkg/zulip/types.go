package zulip

import "encoding/json"

// RawEvent is one loosely-typed record from the Zulip event queue. Fields
// other than ID and Type are only present for some event kinds; downstream
// code goes through dispatcher.ParseMessageEvent instead of probing them.
type RawEvent struct {
	ID      int64       `json:"id"`
	Type    string      `json:"type"`
	Message *RawMessage `json:"message,omitempty"`
}

// RawMessage is the nested message record of a "message" event.
type RawMessage struct {
	ID               int64         `json:"id"`
	SenderID         int64         `json:"sender_id"`
	SenderEmail      string        `json:"sender_email"`
	Content          string        `json:"content"`
	Type             string        `json:"type"` // "private" or "stream"
	DisplayRecipient RecipientName `json:"display_recipient"`
	Subject          string        `json:"subject"`
	IsMeMessage      bool          `json:"is_me_message"`
}

// RecipientName holds display_recipient, which the API serializes as a
// stream name string for stream messages but as a list of user records for
// private ones. Only the string form matters here; the list form decodes to
// empty.
type RecipientName string

func (r *RecipientName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = RecipientName(s)
		return nil
	}
	*r = ""
	return nil
}

// User is the subset of a Zulip user record the bot cares about.
type User struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
	IsOwner  bool   `json:"is_owner"`
}

// EventQueue is the long-poll cursor returned by Register.
type EventQueue struct {
	QueueID     string `json:"queue_id"`
	LastEventID int64  `json:"last_event_id"`
}

// SubscribeResult reports the outcome of a self-subscription request,
// keyed by subscriber email as the API returns it.
type SubscribeResult struct {
	Subscribed        map[string][]string `json:"subscribed"`
	AlreadySubscribed map[string][]string `json:"already_subscribed"`
}

// apiResponse is the envelope every Zulip API response carries.
type apiResponse struct {
	Result     string  `json:"result"`
	Msg        string  `json:"msg"`
	Code       string  `json:"code"`
	RetryAfter float64 `json:"retry-after"`
}

func (r *apiResponse) ok() bool {
	return r.Result == "success"
}

// API error codes the client reacts to.
const (
	codeRateLimitHit  = "RATE_LIMIT_HIT"
	codeBadEventQueue = "BAD_EVENT_QUEUE_ID"
)
