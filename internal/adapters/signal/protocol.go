package signal

import (
	"encoding/json"

	"github.com/dkeye/voicesync/internal/domain"
)

// Envelope types.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
	TypePing     = "ping"
	TypePong     = "pong"
)

// Request methods.
const (
	MethodCreate                  = "create"
	MethodFind                    = "find"
	MethodFindOrCreate            = "find_or_create"
	MethodClose                   = "close"
	MethodUpdateMetadata          = "update_metadata"
	MethodJoin                    = "join"
	MethodLeave                   = "leave"
	MethodUpdateMemberMetadata    = "update_member_metadata"
	MethodPublish                 = "publish"
	MethodUnpublish               = "unpublish"
	MethodEnablePublication       = "enable_publication"
	MethodDisablePublication      = "disable_publication"
	MethodUpdatePublicationMeta   = "update_publication_metadata"
	MethodSubscribe               = "subscribe"
	MethodUnsubscribe             = "unsubscribe"
	MethodEnableSubscription      = "enable_subscription"
	MethodDisableSubscription     = "disable_subscription"
	MethodChangePreferredEncoding = "change_preferred_encoding"
	MethodWatch                   = "watch"
	MethodUnwatch                 = "unwatch"
)

// Envelope is the single frame shape in both directions. Requests carry
// ID, Method and Params; responses echo the ID with OK and either Result
// or Error; pushed events carry Event only.
type Envelope struct {
	Type   string              `json:"type"`
	ID     string              `json:"id,omitempty"`
	Method string              `json:"method,omitempty"`
	Params *Params             `json:"params,omitempty"`
	OK     bool                `json:"ok,omitempty"`
	Result json.RawMessage     `json:"result,omitempty"`
	Error  *domain.RemoteError `json:"error,omitempty"`
	Event  *domain.Event       `json:"event,omitempty"`
}

// Params holds the arguments of every method; each method reads the
// fields it needs.
type Params struct {
	SessionID      domain.SessionID         `json:"session_id,omitempty"`
	Name           string                   `json:"name,omitempty"`
	Metadata       string                   `json:"metadata,omitempty"`
	Query          *domain.SessionQuery     `json:"query,omitempty"`
	Member         *domain.MemberInit       `json:"member,omitempty"`
	MemberID       domain.MemberID          `json:"member_id,omitempty"`
	PublicationID  domain.PublicationID     `json:"publication_id,omitempty"`
	SubscriptionID domain.SubscriptionID    `json:"subscription_id,omitempty"`
	Publish        *domain.PublishRequest   `json:"publish,omitempty"`
	Subscribe      *domain.SubscribeRequest `json:"subscribe,omitempty"`
	EncodingID     string                   `json:"encoding_id,omitempty"`
}
