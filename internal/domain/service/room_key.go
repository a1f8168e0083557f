package service

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

const roomKeyPrefix = "room_"

// RoomKey derives the canonical room id for an unordered participant pair. Both participants
// compute the same id, so concurrent first contacts collide on one document instead of creating
// two rooms.
func RoomKey(userA, userB string) string {
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}

	h := blake3.New()
	h.Write([]byte(lo))
	h.Write([]byte{0})
	h.Write([]byte(hi))
	sum := h.Sum(nil)

	return roomKeyPrefix + hex.EncodeToString(sum[:16])
}
