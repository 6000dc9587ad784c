package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	evt := NewSessionEvent(SessionExpired, "s-1", map[string]interface{}{KeyCollectionID: "c-1"})

	raw, err := Marshal(evt)
	require.NoError(t, err)

	got, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, SessionExpired, got.EventType())
	assert.Equal(t, "s-1", String(got, KeySessionID))
	assert.Equal(t, "c-1", String(got, KeyCollectionID))
	assert.True(t, evt.OccurredAt.Equal(got.OccurredAt))
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"data":{}}`))
	assert.Error(t, err)
}
