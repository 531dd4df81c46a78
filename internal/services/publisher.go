package services

import (
	pubnub "github.com/pubnub/go"
)

// PubNubPublisher broadcasts payment events over PubNub so the dashboard
// can react without polling.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pn: pn}
}

func (p *PubNubPublisher) PublishPaymentEvent(channel string, message map[string]any) {
	if p.pn == nil {
		return
	}

	p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
}
