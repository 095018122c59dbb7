package keyValStore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"pgregory.net/rapid"
)

func TestRecordKeyOrdering(t *testing.T) {
	assert.Equal(t, []byte("note:\x00\x00\x00\x00\x00\x00\x00\x01"), recordKey(notePrefix, 1))
	assert.Less(t, string(recordKey(notePrefix, 255)), string(recordKey(notePrefix, 256)))
}

func TestPublicKeyRecordRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.SliceOf(rapid.Byte()).Draw(t, "n")
		e := rapid.SliceOf(rapid.Byte()).Draw(t, "e")

		gotN, gotE, err := unmarshalPublicKey(marshalPublicKey(n, e))
		require.NoError(t, err)
		assert.Equal(t, len(n), len(gotN))
		assert.Equal(t, string(n), string(gotN))
		assert.Equal(t, string(e), string(gotE))
	})
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	b := protowire.AppendTag(nil, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 77)
	b = append(b, marshalNote([]byte("ct"))...)

	ct, err := unmarshalNote(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("ct"), ct)
}

func TestTruncatedRecord(t *testing.T) {
	b := marshalNote([]byte("ciphertext"))
	_, err := unmarshalNote(b[:len(b)-3])
	assert.ErrorContains(t, err, "malformed record")
}
