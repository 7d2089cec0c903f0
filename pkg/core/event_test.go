package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventFind(t *testing.T) {
	frame := &Event{
		Type: TypeFrame,
		Name: "frame",
		Children: []*Event{
			{Type: TypeMarker, Name: "markers", Data: Markers{{ID: 1}, {ID: 2}}},
			{Type: TypeRigid, Name: "rigids", Data: Rigids{{ID: 7}}},
		},
	}

	assert.Same(t, frame, frame.Find("frame"))
	assert.Equal(t, TypeRigid, frame.Find("rigids").Type)
	assert.Nil(t, frame.Find("peaks"))

	var nilEvent *Event
	assert.Nil(t, nilEvent.Find("markers"))
}

func TestData(t *testing.T) {
	e := &Event{Type: TypeMarker, Data: Markers{{ID: 3, X: 1}}}

	markers, ok := Data[Markers](e)
	assert.True(t, ok)
	assert.Len(t, markers, 1)

	_, ok = Data[Rigids](e)
	assert.False(t, ok)

	_, ok = Data[Markers](nil)
	assert.False(t, ok)
}

func TestEventLen(t *testing.T) {
	assert.Equal(t, 3, (&Event{Type: TypeByte, Data: Bytes("abc")}).Len())
	assert.Equal(t, 2, (&Event{Type: TypeFrame, Children: []*Event{{}, {}}}).Len())
	assert.Equal(t, 0, (&Event{Type: TypeInt}).Len())
}

func TestSubEventIDs(t *testing.T) {
	assert.True(t, IsSubEvent(0x0102))
	assert.False(t, IsSubEvent(0x0002))
	assert.Equal(t, uint16(0x01), FrameID(0x0102))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "marker", TypeMarker.String())
	assert.Equal(t, "type(0x42)", Type(0x42).String())
	assert.True(t, TypeRigid.IsRecord())
	assert.False(t, TypeFrame.IsRecord())
}
