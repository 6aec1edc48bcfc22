package domain

type EventType string

const (
	EventMemberJoined                EventType = "member_joined"
	EventMemberLeft                  EventType = "member_left"
	EventMetadataUpdated             EventType = "metadata_updated"
	EventMemberMetadataUpdated       EventType = "member_metadata_updated"
	EventStreamPublished             EventType = "stream_published"
	EventStreamUnpublished           EventType = "stream_unpublished"
	EventPublicationEnabled          EventType = "publication_enabled"
	EventPublicationDisabled         EventType = "publication_disabled"
	EventPublicationMetadataUpdated  EventType = "publication_metadata_updated"
	EventPublicationSubscribed       EventType = "publication_subscribed"
	EventPublicationUnsubscribed     EventType = "publication_unsubscribed"
	EventSubscriptionEnabled         EventType = "subscription_enabled"
	EventSubscriptionDisabled        EventType = "subscription_disabled"
	EventSubscriptionEncodingChanged EventType = "subscription_encoding_changed"
	EventClosed                      EventType = "closed"
	EventError                       EventType = "error"
)

// Event is the raw payload produced by the directory or the media engine.
// Descriptors are attached when the producer knows them; bare ids are used
// otherwise and only resolve against entities already cached.
type Event struct {
	Type      EventType `json:"type"`
	SessionID SessionID `json:"session_id"`

	Member       *MemberDescriptor       `json:"member,omitempty"`
	Publication  *PublicationDescriptor  `json:"publication,omitempty"`
	Subscription *SubscriptionDescriptor `json:"subscription,omitempty"`

	MemberID       MemberID       `json:"member_id,omitempty"`
	PublicationID  PublicationID  `json:"publication_id,omitempty"`
	SubscriptionID SubscriptionID `json:"subscription_id,omitempty"`

	Metadata   string `json:"metadata,omitempty"`
	EncodingID string `json:"encoding_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// MemberRef returns the member id the event points at, preferring the
// attached descriptor.
func (e Event) MemberRef() MemberID {
	if e.Member != nil {
		return e.Member.ID
	}
	return e.MemberID
}

func (e Event) PublicationRef() PublicationID {
	if e.Publication != nil {
		return e.Publication.ID
	}
	return e.PublicationID
}

func (e Event) SubscriptionRef() SubscriptionID {
	if e.Subscription != nil {
		return e.Subscription.ID
	}
	return e.SubscriptionID
}
