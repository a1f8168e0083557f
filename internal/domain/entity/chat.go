package entity

import "time"

// SubjectRef points at the listing that prompted a conversation. It is a snapshot taken when the
// room is created and is never re-validated against the live listing.
type SubjectRef struct {
	ID           string `json:"id" firestore:"id"`
	Title        string `json:"title" firestore:"title"`
	ThumbnailURL string `json:"thumbnail_url,omitempty" firestore:"thumbnailUrl,omitempty"`
}

type ChatRoom struct {
	ID           string   `json:"id" firestore:"id"`
	Participants []string `json:"participants" firestore:"participants"`
	SellerID     string   `json:"seller_id" firestore:"sellerId"`
	BuyerID      string   `json:"buyer_id" firestore:"buyerId"`
	SellerName   string   `json:"seller_name,omitempty" firestore:"sellerName,omitempty"`
	BuyerName    string   `json:"buyer_name,omitempty" firestore:"buyerName,omitempty"`

	Subject *SubjectRef `json:"subject,omitempty" firestore:"subject,omitempty"`

	// Denormalized preview, written on every send and never refreshed otherwise.
	LastMessage     string         `json:"last_message" firestore:"lastMessage"`
	LastMessageTime time.Time      `json:"last_message_time" firestore:"lastMessageTime,serverTimestamp"`
	UnreadCount     map[string]int `json:"unread_count" firestore:"unreadCount"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt,serverTimestamp"`
}

// HasParticipant reports whether userID appears in any participant field of the room.
func (r *ChatRoom) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if r.SellerID == userID || r.BuyerID == userID {
		return true
	}
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns sellerId when userID is the buyer, buyerId otherwise.
func (r *ChatRoom) OtherParticipant(userID string) string {
	if r.BuyerID == userID {
		return r.SellerID
	}
	return r.BuyerID
}

// ParticipantName returns the display name cached on the room for userID.
func (r *ChatRoom) ParticipantName(userID string) string {
	switch userID {
	case r.SellerID:
		return r.SellerName
	case r.BuyerID:
		return r.BuyerName
	}
	return ""
}

func (r *ChatRoom) UnreadFor(userID string) int {
	if r.UnreadCount == nil {
		return 0
	}
	return r.UnreadCount[userID]
}

// Clone returns a deep copy so callers can hand rooms to listeners without sharing the map.
func (r *ChatRoom) Clone() *ChatRoom {
	c := *r
	c.Participants = append([]string(nil), r.Participants...)
	c.UnreadCount = make(map[string]int, len(r.UnreadCount))
	for k, v := range r.UnreadCount {
		c.UnreadCount[k] = v
	}
	if r.Subject != nil {
		s := *r.Subject
		c.Subject = &s
	}
	return &c
}

type Message struct {
	ID         string `json:"id" firestore:"id"`
	RoomID     string `json:"room_id" firestore:"roomId"`
	SenderID   string `json:"sender_id" firestore:"senderId"`
	SenderName string `json:"sender_name" firestore:"senderName"` // snapshot at send time
	Text       string `json:"text" firestore:"text"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt,serverTimestamp"`

	// Reserved. Read state is tracked per room through ChatRoom.UnreadCount; nothing sets this.
	Read bool `json:"read" firestore:"read"`
}
