// Package msgs defines the events published for a balance board.
//
// Events are encoded with protobuf and wrapped in Typed, so a subscriber
// can decode any event from the type id alone.
package msgs
