package orch

import (
	"github.com/dkeye/voicesync/internal/domain"
)

func (o *Orchestrator) Publish(sid domain.SessionID, req domain.PublishRequest) (domain.PublicationDescriptor, error) {
	room, err := o.room(sid)
	if err != nil {
		return domain.PublicationDescriptor{}, err
	}
	p, err := room.Publish(req)
	if err != nil {
		return domain.PublicationDescriptor{}, err
	}
	o.emit(publicationEvent(domain.EventStreamPublished, sid, p))
	return p, nil
}

// Unpublish cancels the publication and every subscription to it.
func (o *Orchestrator) Unpublish(sid domain.SessionID, pid domain.PublicationID) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	gone, err := room.Unpublish(pid)
	if err != nil {
		return err
	}
	for _, s := range gone.Unsubscribed {
		o.emit(subscriptionEvent(domain.EventPublicationUnsubscribed, sid, s))
	}
	o.emit(publicationEvent(domain.EventStreamUnpublished, sid, gone.Publication))
	return nil
}

func (o *Orchestrator) SetPublicationState(sid domain.SessionID, pid domain.PublicationID, state domain.State) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	p, err := room.SetPublicationState(pid, state)
	if err != nil {
		return err
	}
	t := domain.EventPublicationEnabled
	if state == domain.StateDisabled {
		t = domain.EventPublicationDisabled
	}
	o.emit(publicationEvent(t, sid, p))
	return nil
}

func (o *Orchestrator) UpdatePublicationMetadata(sid domain.SessionID, pid domain.PublicationID, metadata string) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	p, err := room.UpdatePublicationMetadata(pid, metadata)
	if err != nil {
		return err
	}
	o.emit(publicationEvent(domain.EventPublicationMetadataUpdated, sid, p))
	return nil
}

func (o *Orchestrator) Subscribe(sid domain.SessionID, req domain.SubscribeRequest) (domain.SubscriptionDescriptor, error) {
	room, err := o.room(sid)
	if err != nil {
		return domain.SubscriptionDescriptor{}, err
	}
	s, err := room.Subscribe(req)
	if err != nil {
		return domain.SubscriptionDescriptor{}, err
	}
	o.emit(subscriptionEvent(domain.EventPublicationSubscribed, sid, s))
	return s, nil
}

func (o *Orchestrator) Unsubscribe(sid domain.SessionID, subID domain.SubscriptionID) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	s, err := room.Unsubscribe(subID)
	if err != nil {
		return err
	}
	o.emit(subscriptionEvent(domain.EventPublicationUnsubscribed, sid, s))
	return nil
}

func (o *Orchestrator) SetSubscriptionState(sid domain.SessionID, subID domain.SubscriptionID, state domain.State) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	s, err := room.SetSubscriptionState(subID, state)
	if err != nil {
		return err
	}
	t := domain.EventSubscriptionEnabled
	if state == domain.StateDisabled {
		t = domain.EventSubscriptionDisabled
	}
	o.emit(subscriptionEvent(t, sid, s))
	return nil
}

func (o *Orchestrator) ChangePreferredEncoding(sid domain.SessionID, subID domain.SubscriptionID, encodingID string) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	s, err := room.ChangePreferredEncoding(subID, encodingID)
	if err != nil {
		return err
	}
	o.emit(subscriptionEvent(domain.EventSubscriptionEncodingChanged, sid, s))
	return nil
}
