// Package broker delivers message bodies from a topic exchange to handlers.
//
// A Runner owns one Consumer and one Subscription. Consumers process
// deliveries one at a time and acknowledge a message only after its handler
// returned.
package broker
