package core

import "github.com/dkeye/voicesync/internal/domain"

// MediaEngine is the native side: it moves media, the directory only
// knows about it. Handles are publication or subscription ids.
type MediaEngine interface {
	// Publish binds a local stream to an accepted publication.
	Publish(pid domain.PublicationID, stream domain.Stream, encodings []domain.Encoding) error
	// Subscribe returns the receiving stream for an accepted subscription.
	Subscribe(subID domain.SubscriptionID, pid domain.PublicationID, kind domain.ContentType) (domain.Stream, error)
	// Enable, Disable and Cancel accept either handle kind.
	Enable(handle string) error
	Disable(handle string) error
	Cancel(handle string) error
	ChangeEncoding(subID domain.SubscriptionID, encodingID string) error
}
