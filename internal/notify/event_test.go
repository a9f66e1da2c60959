package notify

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEventValidate_Valid(t *testing.T) {
	event := Event{
		UserID:  uuid.NewString(),
		Kind:    KindCommentReply,
		Title:   "New reply",
		Message: "Someone replied to your comment",
		RefType: "comment",
		RefID:   42,
	}

	assert.NoError(t, event.Validate())
}

func TestEventValidate_MissingUserID(t *testing.T) {
	event := Event{Kind: KindChatMessage, Title: "t", Message: "m"}

	err := event.Validate()
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestEventValidate_MalformedUserID(t *testing.T) {
	event := Event{UserID: "not-a-uuid", Kind: KindChatMessage}

	err := event.Validate()
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestEventValidate_UnknownKind(t *testing.T) {
	event := Event{UserID: uuid.NewString(), Kind: Kind("SOMETHING_ELSE")}

	err := event.Validate()
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestEventValidate_RefPairMismatch(t *testing.T) {
	withType := Event{UserID: uuid.NewString(), Kind: KindPostDeleted, RefType: "post"}
	assert.ErrorIs(t, withType.Validate(), ErrInvalidEvent)

	withID := Event{UserID: uuid.NewString(), Kind: KindPostDeleted, RefID: 7}
	assert.ErrorIs(t, withID.Validate(), ErrInvalidEvent)

	neither := Event{UserID: uuid.NewString(), Kind: KindPostDeleted}
	assert.NoError(t, neither.Validate())
}

func TestKindValid(t *testing.T) {
	for _, kind := range []Kind{KindChatMessage, KindFavoriteUpdate, KindPostDeleted, KindCommentReply} {
		assert.True(t, kind.Valid(), "kind %s should be valid", kind)
	}
	assert.False(t, Kind("").Valid())
	assert.False(t, Kind("UNKNOWN").Valid())
}
