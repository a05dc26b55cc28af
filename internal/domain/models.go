// Package domain defines the persistence models for users, chat rooms, room
// membership, and messages. These types are mapped with GORM and form the
// canonical data layer shared by the API server and the queue worker.
package domain

import "time"

// User is a registered account. The persistent store is the canonical source
// for profile data; the profile cache only mirrors Username with a TTL.
//
// Fields:
//   - ID: auto-increment primary key.
//   - Username: unique login/display handle, mirrored by the profile cache.
//   - DisplayName / AvatarURL: optional profile decoration.
type User struct {
	ID          int64     `json:"userId"      gorm:"column:user_id;primaryKey;autoIncrement"`
	Username    string    `json:"username"    gorm:"type:varchar(64);not null;uniqueIndex"`
	DisplayName string    `json:"displayName" gorm:"type:varchar(128)"`
	AvatarURL   string    `json:"avatarUrl"   gorm:"type:varchar(512)"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ChatRoom is a shared room users exchange messages in. Membership is mutated
// only by room-management operations; the membership cache never originates
// membership, it only mirrors rows of user_chat_rooms.
type ChatRoom struct {
	ID        int64     `json:"roomId"    gorm:"column:chat_room_id;primaryKey;autoIncrement"`
	Name      string    `json:"name"      gorm:"type:varchar(128);not null"`
	IsPrivate bool      `json:"isPrivate" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Members []UserChatRoom `json:"-" gorm:"foreignKey:ChatRoomID;references:ID"`
}

// TableName returns the database table name for ChatRoom.
func (ChatRoom) TableName() string { return "chat_rooms" }

// UserChatRoom is the membership join row between a user and a chat room.
type UserChatRoom struct {
	UserID     int64     `json:"userId" gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ChatRoomID int64     `json:"roomId" gorm:"column:chat_room_id;primaryKey;autoIncrement:false;index"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// TableName returns the database table name for UserChatRoom.
func (UserChatRoom) TableName() string { return "user_chat_rooms" }

// Message is the canonical persisted record of a dispatched message.
//
// UniqueID carries the envelope messageId and is the idempotency key: the
// unique index makes redelivered queue envelopes a no-op on insert, so the
// consumer can safely see the same messageId more than once.
type Message struct {
	ID         int64     `json:"id"        gorm:"column:message_id;primaryKey;autoIncrement"`
	UniqueID   string    `json:"messageId" gorm:"column:unique_id;type:char(36);not null;uniqueIndex:ux_messages_unique_id"`
	ChatRoomID int64     `json:"roomId"    gorm:"column:chat_room_id;not null;index:idx_room_messages,priority:1"`
	SenderID   int64     `json:"senderId"  gorm:"column:sender_id;not null;index"`
	Content    string    `json:"content"   gorm:"type:text;not null"`
	IsMedia    bool      `json:"isMedia"   gorm:"not null;default:false"`
	SentAt     time.Time `json:"sentAt"    gorm:"not null;index:idx_room_messages,priority:2"`
	CreatedAt  time.Time `json:"createdAt"`

	Room   ChatRoom `json:"-" gorm:"foreignKey:ChatRoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Sender User     `json:"-" gorm:"foreignKey:SenderID;references:ID"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
