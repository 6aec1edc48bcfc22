package domain

type (
	SessionID      string
	MemberID       string
	PublicationID  string
	SubscriptionID string
)

// Stream is an opaque media handle owned by the media engine.
type Stream interface {
	ID() string
	ContentType() ContentType
}

type Encoding struct {
	ID                    string  `json:"id"`
	MaxBitrate            int     `json:"max_bitrate,omitempty"`
	ScaleResolutionDownBy float64 `json:"scale_resolution_down_by,omitempty"`
	MaxFramerate          float64 `json:"max_framerate,omitempty"`
}

type Codec struct {
	MimeType  string `json:"mime_type"`
	ClockRate uint32 `json:"clock_rate,omitempty"`
	Channels  uint16 `json:"channels,omitempty"`
}

// SessionDescriptor is what the directory answers for create/find.
type SessionDescriptor struct {
	ID            SessionID                `json:"id"`
	Name          string                   `json:"name,omitempty"`
	Metadata      string                   `json:"metadata,omitempty"`
	State         SessionState             `json:"state"`
	Members       []MemberDescriptor       `json:"members,omitempty"`
	Publications  []PublicationDescriptor  `json:"publications,omitempty"`
	Subscriptions []SubscriptionDescriptor `json:"subscriptions,omitempty"`
}

type MemberDescriptor struct {
	ID       MemberID    `json:"id"`
	Name     string      `json:"name,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
	Type     MemberType  `json:"type"`
	State    MemberState `json:"state"`
}

type PublicationDescriptor struct {
	ID          PublicationID `json:"id"`
	PublisherID MemberID      `json:"publisher_id"`
	// OriginID is set on relayed publications; state and metadata then
	// follow the origin.
	OriginID    PublicationID `json:"origin_id,omitempty"`
	ContentType ContentType   `json:"content_type"`
	Metadata    string        `json:"metadata,omitempty"`
	State       State         `json:"state"`
	Encodings   []Encoding    `json:"encodings,omitempty"`
	Codecs      []Codec       `json:"codecs,omitempty"`

	// Stream is attached locally after a successful publish.
	Stream Stream `json:"-"`
}

type SubscriptionDescriptor struct {
	ID                  SubscriptionID `json:"id"`
	SubscriberID        MemberID       `json:"subscriber_id"`
	PublicationID       PublicationID  `json:"publication_id"`
	ContentType         ContentType    `json:"content_type"`
	State               State          `json:"state"`
	PreferredEncodingID string         `json:"preferred_encoding_id,omitempty"`

	// Publication lets a receiver create the subscribed publication on
	// demand when the subscription is the first thing it hears about.
	Publication *PublicationDescriptor `json:"publication,omitempty"`

	// Stream is resolved by the media engine, never by the directory.
	Stream Stream `json:"-"`
}

// SessionQuery finds a session by id or by name; id wins when both are set.
type SessionQuery struct {
	ID   SessionID `json:"id,omitempty"`
	Name string    `json:"name,omitempty"`
}

func (q SessionQuery) IsZero() bool { return q.ID == "" && q.Name == "" }

type MemberInit struct {
	Name     string     `json:"name,omitempty"`
	Type     MemberType `json:"type"`
	Metadata string     `json:"metadata,omitempty"`
}

type PublishRequest struct {
	PublisherID MemberID      `json:"publisher_id"`
	ContentType ContentType   `json:"content_type"`
	Metadata    string        `json:"metadata,omitempty"`
	OriginID    PublicationID `json:"origin_id,omitempty"`
	Encodings   []Encoding    `json:"encodings,omitempty"`
	Codecs      []Codec       `json:"codecs,omitempty"`
}

type SubscribeRequest struct {
	SubscriberID        MemberID      `json:"subscriber_id"`
	PublicationID       PublicationID `json:"publication_id"`
	PreferredEncodingID string        `json:"preferred_encoding_id,omitempty"`
}
