package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsReserved(t *testing.T) {
	for _, name := range ReservedFields() {
		assert.True(t, IsReserved(name), name)
	}
	assert.False(t, IsReserved("title"))
	assert.False(t, IsReserved("hash"))
}

func TestNormalizeIndexName(t *testing.T) {
	assert.Equal(t, "articles", NormalizeIndexName("  Articles "))
}

func TestMetadata_Validate(t *testing.T) {
	ok := Metadata{IndexName: "idx", ContentID: "Qm1", Fields: Fields{"a": Int(1)}}
	assert.NoError(t, ok.Validate())

	noIndex := ok
	noIndex.IndexName = ""
	assert.ErrorIs(t, noIndex.Validate(), ErrInvalidArgument)

	noCID := ok
	noCID.ContentID = " "
	assert.ErrorIs(t, noCID.Validate(), ErrInvalidArgument)

	reserved := ok
	reserved.Fields = Fields{FieldContentType: String("x")}
	assert.ErrorIs(t, reserved.Validate(), ErrInvalidArgument)
}

func TestMetadataAndPayload_HasPayload(t *testing.T) {
	assert.False(t, MetadataAndPayload{}.HasPayload())
	assert.True(t, MetadataAndPayload{Payload: []byte{}}.HasPayload())
}

func TestHandleNullValues(t *testing.T) {
	fields := Fields{
		"title": String("x"),
		"empty": String(""),
		"gone":  Null(),
	}

	indexed := HandleNullValues(fields, true)
	assert.True(t, indexed["empty"].Equal(String(NullValue)))
	assert.True(t, indexed["gone"].Equal(String(NullValue)))
	assert.True(t, indexed["title"].Equal(String("x")))

	dropped := HandleNullValues(fields, false)
	_, present := dropped["gone"]
	assert.False(t, present)
	assert.True(t, dropped["empty"].Equal(String("")))
	assert.Len(t, dropped, 2)
}

func TestNullFilterValue(t *testing.T) {
	assert.True(t, NullFilterValue(Null(), true).Equal(String(NullValue)))
	assert.True(t, NullFilterValue(Null(), false).IsNull())
	assert.True(t, NullFilterValue(Int(1), true).Equal(Int(1)))
}

func TestMetadata_SetField(t *testing.T) {
	m := Metadata{ContentID: "QmA", Fields: Fields{"keep": Int(1)}}

	require.NoError(t, m.SetField(FieldPinned, Bool(true), false))
	require.NoError(t, m.SetField(FieldHash, String("QmB"), false))
	require.NoError(t, m.SetField(FieldContentType, String("text/plain"), false))
	require.NoError(t, m.SetField(FieldContent, String("body"), false))
	require.NoError(t, m.SetField("title", String("hi"), false))

	assert.True(t, m.Pinned)
	assert.Equal(t, "QmB", m.ContentID)
	assert.Equal(t, "text/plain", m.ContentType)
	assert.Equal(t, []byte("body"), m.Content)
	assert.Equal(t, String("hi"), m.Fields["title"])
	assert.Equal(t, Int(1), m.Fields["keep"])

	require.NoError(t, m.SetField("title", Null(), false))
	_, ok := m.Fields["title"]
	assert.False(t, ok)

	require.NoError(t, m.SetField("title", Null(), true))
	assert.Equal(t, String(NullValue), m.Fields["title"])
}

func TestMetadata_SetFieldErrors(t *testing.T) {
	var m Metadata

	assert.ErrorIs(t, m.SetField(FieldPinned, String("yes"), false), ErrInvalidArgument)
	assert.ErrorIs(t, m.SetField(FieldHash, String(""), false), ErrInvalidArgument)
	assert.ErrorIs(t, m.SetField(" ", Int(1), false), ErrInvalidArgument)
}
