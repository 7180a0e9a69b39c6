package domain

import "fmt"

// Association is a typed reference from a message to one entity of the kinds
// listed in AssociatedTypes. It is a closed variant: the only implementations
// are UserAssociation, GoalAssociation, WorkoutAssociation and
// ActivitySummaryAssociation.
//
// The referenced entities live outside this store, so the association is
// persisted as an (associated_type, associated_id) column pair without a
// foreign key. Message.Association and Message.SetAssociation convert between
// the two representations.
type Association interface {
	Kind() AssociatedType
	TargetID() string
	isAssociation()
}

type UserAssociation struct{ UserID string }

func (a UserAssociation) Kind() AssociatedType { return AssociatedTypeUser }
func (a UserAssociation) TargetID() string     { return a.UserID }
func (UserAssociation) isAssociation()         {}

type GoalAssociation struct{ GoalID string }

func (a GoalAssociation) Kind() AssociatedType { return AssociatedTypeGoal }
func (a GoalAssociation) TargetID() string     { return a.GoalID }
func (GoalAssociation) isAssociation()         {}

type WorkoutAssociation struct{ WorkoutID string }

func (a WorkoutAssociation) Kind() AssociatedType { return AssociatedTypeWorkout }
func (a WorkoutAssociation) TargetID() string     { return a.WorkoutID }
func (WorkoutAssociation) isAssociation()         {}

type ActivitySummaryAssociation struct{ ActivitySummaryID string }

func (a ActivitySummaryAssociation) Kind() AssociatedType { return AssociatedTypeActivitySummary }
func (a ActivitySummaryAssociation) TargetID() string     { return a.ActivitySummaryID }
func (ActivitySummaryAssociation) isAssociation()         {}

// NewAssociation builds the variant for kind pointing at id.
func NewAssociation(kind AssociatedType, id string) (Association, error) {
	if id == "" {
		return nil, fmt.Errorf("association %q: empty target id", kind)
	}
	switch kind {
	case AssociatedTypeUser:
		return UserAssociation{UserID: id}, nil
	case AssociatedTypeGoal:
		return GoalAssociation{GoalID: id}, nil
	case AssociatedTypeWorkout:
		return WorkoutAssociation{WorkoutID: id}, nil
	case AssociatedTypeActivitySummary:
		return ActivitySummaryAssociation{ActivitySummaryID: id}, nil
	default:
		return nil, fmt.Errorf("%w: associated type %q", ErrInvalidEnum, kind)
	}
}
