package models

import "time"

// Friendship status values
const (
	FriendshipPending  = "PENDING"
	FriendshipAccepted = "ACCEPTED"
	FriendshipRejected = "REJECTED"
	FriendshipBlocked  = "BLOCKED"
)

// User represents a user in the system
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PhoneHash     *string   `json:"-"`
	Handle        *string   `json:"handle,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	PhoneVerified bool      `json:"phone_verified"`
	PushToken     *string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MagicLink is a single-use login credential. Only the SHA-256 hash of the
// raw token is stored.
type MagicLink struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a live bearer session. Only the SHA-256 hash of the issued
// credential is stored, so a database dump cannot be replayed.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Friendship is a directed request edge between two users. The unordered
// (requester, addressee) pair is unique regardless of direction.
type Friendship struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	AddresseeID string    `json:"addressee_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Class is a cached course offering sourced from the external catalog
type Class struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	CatalogNumber string    `json:"catalog_number"`
	Term          string    `json:"term"`
	ExternalID    string    `json:"external_id"`
	Title         string    `json:"title"`
	Instructor    string    `json:"instructor"`
	MeetingTimes  string    `json:"meeting_times"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserClass is an enrollment join row, unique per (user, class)
type UserClass struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ClassID   string    `json:"class_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ClassMessage is an anonymous post scoped to a class. UserID is retained
// only for moderation and the author's own view; it is never serialized.
type ClassMessage struct {
	ID           string    `json:"id"`
	ClassID      string    `json:"class_id"`
	UserID       string    `json:"-"`
	AnonymousID  string    `json:"anonymous_id"`
	Content      string    `json:"content"`
	ParentID     *string   `json:"parent_id,omitempty"`
	FlaggedCount int       `json:"flagged_count"`
	Hidden       bool      `json:"hidden"`
	CreatedAt    time.Time `json:"created_at"`
}

// MessageView is a ClassMessage annotated for one caller
type MessageView struct {
	ClassMessage
	ReplyCount   int  `json:"reply_count"`
	IsOwnMessage bool `json:"is_own_message"`
}
