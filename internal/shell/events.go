package shell

import (
	"swimguard/internal/pubsub"
	"swimguard/internal/swim"
)

// MembershipEvent is the event type this shell publishes on the pub/sub
// bus. There is exactly one: every other interested party (a CLI printer, a
// consistent-hashing ring, a metrics exporter) subscribes to the same
// EventType and receives the engine's MemberStatusChanged directives,
// without the engine knowing any of them exist.
const MembershipEvent pubsub.EventType = 1

// Subscribe registers ch to receive every MemberStatusChanged directive the
// engine emits, fanned out through the shell's PubSubClient.
func Subscribe(p *pubsub.PubSubClient, ch chan *pubsub.Event[swim.MemberStatusChanged], blocking bool) pubsub.SubscriberID {
	return pubsub.Subscribe(p, MembershipEvent, ch, pubsub.SubscriptionOptions{IsBlocking: blocking})
}

func publishStatusChange(p *pubsub.PubSubClient, change swim.MemberStatusChanged) {
	pubsub.Publish(p, pubsub.NewEvent(MembershipEvent, change))
}
