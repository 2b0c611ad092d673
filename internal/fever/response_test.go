package fever

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinIDs(t *testing.T) {
	assert.Equal(t, "", JoinIDs(nil))
	assert.Equal(t, "", JoinIDs([]int64{}))
	assert.Equal(t, "7", JoinIDs([]int64{7}))
	assert.Equal(t, "1,3,9", JoinIDs([]int64{9, 1, 3}))

	// The input slice is left untouched.
	ids := []int64{5, 2}
	JoinIDs(ids)
	assert.Equal(t, []int64{5, 2}, ids)
}

func TestEnvelopeBasePayload(t *testing.T) {
	raw, err := json.Marshal(NewEnvelope(false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_version":3,"auth":0}`, string(raw))

	raw, err = json.Marshal(NewEnvelope(true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_version":3,"auth":1}`, string(raw))
}

func TestEnvelopeEmptyIDListIsExplicitEmptyString(t *testing.T) {
	e := NewEnvelope(true)
	e.SetUnreadItemIDs(nil)

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "", payload["unread_item_ids"])
	assert.NotContains(t, payload, "saved_item_ids")
}

func TestEnvelopeOmitsFieldsForActionsNotRun(t *testing.T) {
	e := NewEnvelope(true)
	e.SetLastRefreshed(1700000000)

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, float64(1700000000), payload["last_refreshed_on_time"])
	for _, key := range []string{"groups", "feeds", "favicons", "items", "total_items", "links", "updated_count", "error"} {
		assert.NotContains(t, payload, key)
	}
}

func TestEnvelopeEmptyCollectionsRenderAsEmptyArrays(t *testing.T) {
	e := NewEnvelope(true)
	groups := []Group{}
	items := []Item{}
	e.Groups = &groups
	e.Items = &items

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"groups":[]`)
	assert.Contains(t, string(raw), `"items":[]`)
}

func TestEnvelopeUpdatedCountAccumulates(t *testing.T) {
	e := NewEnvelope(true)
	e.AddUpdatedCount(2)
	e.AddUpdatedCount(0)
	e.AddUpdatedCount(3)

	require.NotNil(t, e.UpdatedCount)
	assert.Equal(t, int64(5), *e.UpdatedCount)
}

func TestEnvelopeFirstErrorWins(t *testing.T) {
	e := NewEnvelope(true)
	e.SetError("first")
	e.SetError("second")
	assert.Equal(t, "first", e.Error)
}

func TestItemWireFieldNames(t *testing.T) {
	raw, err := json.Marshal(Item{ID: 1, FeedID: 2, HTML: "<p>x</p>", IsRead: 1})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	for _, key := range []string{"id", "feed_id", "title", "author", "html", "url", "is_saved", "is_read", "created_on_time"} {
		assert.Contains(t, payload, key)
	}
	assert.Equal(t, "<p>x</p>", payload["html"])
	assert.Equal(t, float64(1), payload["is_read"])
}
