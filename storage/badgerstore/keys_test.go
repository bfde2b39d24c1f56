package badgerstore

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeUpdatedKey_SortsByTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	earlier := makeUpdatedKey(base, "zzz")
	later := makeUpdatedKey(base.Add(time.Microsecond), "aaa")

	// Lexicographic order follows the timestamp, not the id.
	assert.Negative(t, bytes.Compare(earlier, later))
}

func TestMakeUpdatedKey_TiesBreakOnID(t *testing.T) {
	at := time.Now().UTC()
	a := makeUpdatedKey(at, "a")
	b := makeUpdatedKey(at, "b")
	assert.Negative(t, bytes.Compare(a, b))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := imageEnvelope{MediaType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47, 0x00}}

	got, err := unmarshalEnvelope(marshalEnvelope(env))
	require.NoError(t, err)
	assert.Equal(t, env.MediaType, got.MediaType)
	assert.Equal(t, env.Data, got.Data)
}

func TestEnvelopeEmptyData(t *testing.T) {
	got, err := unmarshalEnvelope(marshalEnvelope(imageEnvelope{MediaType: "image/webp"}))
	require.NoError(t, err)
	assert.Equal(t, "image/webp", got.MediaType)
	assert.Empty(t, got.Data)
}

func TestUnmarshalEnvelopeMalformed(t *testing.T) {
	_, err := unmarshalEnvelope([]byte{0xff})
	assert.Error(t, err)
}
