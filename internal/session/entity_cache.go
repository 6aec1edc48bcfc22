package session

import (
	"fmt"

	"github.com/dkeye/voicesync/internal/cache"
	"github.com/dkeye/voicesync/internal/domain"
)

// entityCache is the single source of truth for which ids already have a
// live object in a session. Each kind has its own store and lock.
type entityCache struct {
	members       *cache.Store[domain.MemberDescriptor, *Member]
	publications  *cache.Store[domain.PublicationDescriptor, *Publication]
	subscriptions *cache.Store[domain.SubscriptionDescriptor, *Subscription]
}

func newEntityCache(s *Session) *entityCache {
	return &entityCache{
		members: cache.New(cache.Hooks[domain.MemberDescriptor, *Member]{
			ID:   func(d domain.MemberDescriptor) string { return string(d.ID) },
			New:  func(d domain.MemberDescriptor) *Member { return newMember(s, d) },
			Live: func(m *Member) bool { return m.State() == domain.MemberJoined },
		}),
		publications: cache.New(cache.Hooks[domain.PublicationDescriptor, *Publication]{
			ID:     func(d domain.PublicationDescriptor) string { return string(d.ID) },
			New:    func(d domain.PublicationDescriptor) *Publication { return newPublication(s, d) },
			Attach: func(p *Publication, d domain.PublicationDescriptor) { p.attachStream(d.Stream) },
			Live:   func(p *Publication) bool { return p.State() != domain.StateCanceled },
		}),
		subscriptions: cache.New(cache.Hooks[domain.SubscriptionDescriptor, *Subscription]{
			ID:     func(d domain.SubscriptionDescriptor) string { return string(d.ID) },
			New:    func(d domain.SubscriptionDescriptor) *Subscription { return newSubscription(s, d) },
			Attach: func(sub *Subscription, d domain.SubscriptionDescriptor) { sub.attachStream(d.Stream) },
			Live:   func(sub *Subscription) bool { return sub.State() != domain.StateCanceled },
		}),
	}
}

func (c *entityCache) member(id domain.MemberID) (*Member, bool) {
	return c.members.Find(string(id))
}

func (c *entityCache) publication(id domain.PublicationID) (*Publication, bool) {
	return c.publications.Find(string(id))
}

func (c *entityCache) subscription(id domain.SubscriptionID) (*Subscription, bool) {
	return c.subscriptions.Find(string(id))
}

func (c *entityCache) addMember(d domain.MemberDescriptor) *Member {
	m, _ := c.members.AddIfNeeded(d)
	return m
}

func (c *entityCache) addPublication(d domain.PublicationDescriptor) *Publication {
	p, _ := c.publications.AddIfNeeded(d)
	return p
}

// addSubscription keeps the invariant that every cached subscription
// resolves to a cached publication: the publication is created first from
// the embedded descriptor when needed.
func (c *entityCache) addSubscription(d domain.SubscriptionDescriptor) (*Subscription, error) {
	if _, ok := c.publication(d.PublicationID); !ok {
		if d.Publication == nil || d.Publication.ID != d.PublicationID {
			return nil, fmt.Errorf("subscription %s: publication %s: %w", d.ID, d.PublicationID, domain.ErrNotFound)
		}
		c.addPublication(*d.Publication)
	}
	sub, _ := c.subscriptions.AddIfNeeded(d)
	return sub, nil
}

// seed loads a directory snapshot.
func (c *entityCache) seed(d *domain.SessionDescriptor) {
	for _, m := range d.Members {
		c.addMember(m)
	}
	for _, p := range d.Publications {
		c.addPublication(p)
	}
	for _, s := range d.Subscriptions {
		_, _ = c.addSubscription(s)
	}
}
