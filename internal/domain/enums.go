package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidEnum is wrapped by every Parse* function when the input is not a
// declared member of the target enumeration.
var ErrInvalidEnum = errors.New("invalid enum value")

// MessageType is the category a source claims for a message.
type MessageType string

const (
	MessageTypeMessage                MessageType = "message"
	MessageTypeTrainerAlert           MessageType = "trainer_alert"
	MessageTypePlaceholder            MessageType = "placeholder"
	MessageTypeActivitySummary        MessageType = "activity_summary"
	MessageTypeActivitySummaryUpdated MessageType = "activity_summary_updated"
)

// MessageTypes lists every declared MessageType in declaration order.
var MessageTypes = []MessageType{
	MessageTypeMessage,
	MessageTypeTrainerAlert,
	MessageTypePlaceholder,
	MessageTypeActivitySummary,
	MessageTypeActivitySummaryUpdated,
}

// Valid reports whether t is a declared member.
func (t MessageType) Valid() bool {
	for _, m := range MessageTypes {
		if t == m {
			return true
		}
	}
	return false
}

// ParseMessageType returns the MessageType named by s.
func ParseMessageType(s string) (MessageType, error) {
	t := MessageType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: message type %q", ErrInvalidEnum, s)
	}
	return t, nil
}

// MessageState is the delivery lifecycle state of a message.
type MessageState string

const (
	MessageStateNew    MessageState = "new"
	MessageStateRead   MessageState = "read"
	MessageStateSent   MessageState = "sent"
	MessageStateFailed MessageState = "failed"
)

var MessageStates = []MessageState{
	MessageStateNew,
	MessageStateRead,
	MessageStateSent,
	MessageStateFailed,
}

func (s MessageState) Valid() bool {
	for _, m := range MessageStates {
		if s == m {
			return true
		}
	}
	return false
}

func ParseMessageState(s string) (MessageState, error) {
	st := MessageState(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: message state %q", ErrInvalidEnum, s)
	}
	return st, nil
}

// MessageSubType refines MessageType. No source has populated it so far; the
// single member keeps the column closed until real values show up.
type MessageSubType string

const MessageSubTypeExample MessageSubType = "example_sub_type"

var MessageSubTypes = []MessageSubType{MessageSubTypeExample}

func (s MessageSubType) Valid() bool {
	for _, m := range MessageSubTypes {
		if s == m {
			return true
		}
	}
	return false
}

func ParseMessageSubType(s string) (MessageSubType, error) {
	st := MessageSubType(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: message sub type %q", ErrInvalidEnum, s)
	}
	return st, nil
}

// DeliveryType is the channel a message was delivered through.
type DeliveryType string

const (
	DeliveryTypeSMS  DeliveryType = "sms"
	DeliveryTypePush DeliveryType = "push"
)

var DeliveryTypes = []DeliveryType{DeliveryTypeSMS, DeliveryTypePush}

func (d DeliveryType) Valid() bool {
	for _, m := range DeliveryTypes {
		if d == m {
			return true
		}
	}
	return false
}

func ParseDeliveryType(s string) (DeliveryType, error) {
	d := DeliveryType(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: delivery type %q", ErrInvalidEnum, s)
	}
	return d, nil
}

// AssociatedType names the kind of entity a message's association points at.
type AssociatedType string

const (
	AssociatedTypeUser            AssociatedType = "user"
	AssociatedTypeGoal            AssociatedType = "goal"
	AssociatedTypeWorkout         AssociatedType = "workout"
	AssociatedTypeActivitySummary AssociatedType = "activity_summary"
)

var AssociatedTypes = []AssociatedType{
	AssociatedTypeUser,
	AssociatedTypeGoal,
	AssociatedTypeWorkout,
	AssociatedTypeActivitySummary,
}

func (a AssociatedType) Valid() bool {
	for _, m := range AssociatedTypes {
		if a == m {
			return true
		}
	}
	return false
}

func ParseAssociatedType(s string) (AssociatedType, error) {
	a := AssociatedType(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: associated type %q", ErrInvalidEnum, s)
	}
	return a, nil
}
