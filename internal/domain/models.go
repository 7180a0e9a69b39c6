// Package domain defines the persistence models for ingested messages and the
// entities they reference. These types are mapped with GORM and form the
// relational target of the ingestion pipeline.
package domain

import "time"

// User is any actor a message references (sender, recipient, originator).
// It carries nothing besides its id; rows exist to anchor foreign keys and
// are created lazily the first time a message mentions them.
type User struct {
	ID string `json:"id" gorm:"type:char(36);primaryKey"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Channel is a grouping context a message may belong to.
type Channel struct {
	ID string `json:"id" gorm:"type:char(36);primaryKey"`
}

// TableName returns the database table name for Channel.
func (Channel) TableName() string { return "channels" }

// Correlation is an opaque key linking related messages (e.g. a thread).
type Correlation struct {
	ID string `json:"id" gorm:"type:char(36);primaryKey"`
}

// TableName returns the database table name for Correlation.
func (Correlation) TableName() string { return "correlations" }

// MessageBody holds the text of a message. It is written after its owning
// message row exists and linked back through Message.BodyID.
//
// Fields:
//   - ID: generated UUID primary key.
//   - MessageID: owning message; unique, a message has at most one body.
//   - Body: verbatim text, empty by default.
type MessageBody struct {
	ID        string `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string `json:"message_id" gorm:"type:char(36);not null;uniqueIndex:ux_message_bodies_message"`
	Body      string `json:"body"       gorm:"type:text;not null;default:''"`
}

// TableName returns the database table name for MessageBody.
func (MessageBody) TableName() string { return "message_bodies" }

// Message is the primary ingested entity: one message or notification event.
// Its ID is supplied by the source and is the idempotency key of the
// pipeline; a row with a given ID is written at most once.
//
// Timestamps are taken verbatim from the source. Automatic GORM timestamp
// tracking is disabled for UpdatedAt so the pipeline never rewrites it.
type Message struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null;index"`
	UpdatedAt *time.Time `json:"updated_at" gorm:"autoUpdateTime:false"`
	SendAt    time.Time  `json:"send_at"    gorm:"not null"`
	SentAt    time.Time  `json:"sent_at"    gorm:"not null"`
	ReadAt    *time.Time `json:"read_at"`

	SentAutomatically bool   `json:"sent_automatically" gorm:"not null;default:false"`
	Tag               string `json:"tag"                gorm:"type:varchar(255);not null;default:''"`
	IsFlagged         bool   `json:"is_flagged"         gorm:"not null;default:false"`

	Type         MessageType     `json:"type"                    gorm:"type:varchar(32);not null;index;check:type IN ('message','trainer_alert','placeholder','activity_summary','activity_summary_updated')"`
	State        MessageState    `json:"state"                   gorm:"type:varchar(16);not null;default:'new';index"`
	SubType      *MessageSubType `json:"sub_type,omitempty"      gorm:"type:varchar(32)"`
	DeliveryType *DeliveryType   `json:"delivery_type,omitempty" gorm:"type:varchar(16);index"`

	// Use Association/SetAssociation rather than these columns directly.
	AssociatedType *AssociatedType `json:"associated_type,omitempty" gorm:"type:varchar(32)"`
	AssociatedID   *string         `json:"associated_id,omitempty"   gorm:"type:char(36)"`

	Attributes Attributes `json:"attributes,omitempty" gorm:"type:json"`

	CanceledAt *time.Time `json:"canceled_at"`
	DeletedAt  *time.Time `json:"deleted_at"`
	ActedOnAt  *time.Time `json:"acted_on_at"`
	ViewedAt   *time.Time `json:"viewed_at"`
	PausedAt   *time.Time `json:"paused_at"`

	ViewedDuration    int `json:"viewed_duration"    gorm:"not null;default:0;check:viewed_duration >= 0"`
	Duration          int `json:"duration"           gorm:"not null;default:0;check:duration >= 0"`
	NotificationCount int `json:"notification_count" gorm:"not null;default:0;check:notification_count >= 0"`

	URLs string `json:"urls" gorm:"column:urls;type:varchar(255);not null;default:''"`

	// SlackTS is stored unparsed: source values overflow a timestamp's year range.
	SlackTS *string `json:"slack_ts,omitempty" gorm:"type:varchar(255)"`

	FromUserID    string  `json:"from_user_id"             gorm:"type:char(36);not null;index"`
	ToUserID      string  `json:"to_user_id"               gorm:"type:char(36);not null;index"`
	SenderUserID  *string `json:"sender_user_id,omitempty" gorm:"type:char(36);index"`
	ChannelID     *string `json:"channel_id,omitempty"     gorm:"type:char(36);index"`
	CorrelationID *string `json:"correlation_id,omitempty" gorm:"type:char(36);index"`
	BodyID        *string `json:"body_id,omitempty"        gorm:"type:char(36)"`

	// Associations exist for foreign-key provisioning only; writes omit them.
	FromUser    *User        `json:"-" gorm:"foreignKey:FromUserID;references:ID"`
	ToUser      *User        `json:"-" gorm:"foreignKey:ToUserID;references:ID"`
	SenderUser  *User        `json:"-" gorm:"foreignKey:SenderUserID;references:ID"`
	Channel     *Channel     `json:"-" gorm:"foreignKey:ChannelID;references:ID"`
	Correlation *Correlation `json:"-" gorm:"foreignKey:CorrelationID;references:ID"`
	Body        *MessageBody `json:"-" gorm:"foreignKey:BodyID;references:ID"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Association returns the typed association of m, or nil when the message
// has none or the stored columns do not form a valid variant.
func (m *Message) Association() Association {
	if m.AssociatedType == nil || m.AssociatedID == nil {
		return nil
	}
	a, err := NewAssociation(*m.AssociatedType, *m.AssociatedID)
	if err != nil {
		return nil
	}
	return a
}

// SetAssociation stores a on m. A nil a clears both columns.
func (m *Message) SetAssociation(a Association) {
	if a == nil {
		m.AssociatedType, m.AssociatedID = nil, nil
		return
	}
	kind, id := a.Kind(), a.TargetID()
	m.AssociatedType, m.AssociatedID = &kind, &id
}
