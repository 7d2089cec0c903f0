package frame

import (
	"fmt"
	"testing"

	"github.com/OCAP2/owl/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// names resolves ids 1 and 2 and frame id 1 like a server names table.
func names(e *core.Event) bool {
	e.TypeName = e.Type.String()
	switch {
	case e.Type == core.TypeFrame && e.ID == 1:
		e.Name = "frame"
	case e.ID == 1:
		e.Name = "markers"
	case e.ID == 2:
		e.Name = "rigids"
	default:
		return false
	}
	return true
}

func sub(frameID, id uint16, t int64, typ core.Type) core.Event {
	return core.Event{ID: frameID<<8 | id, Type: typ, Time: t}
}

func TestAssembler_TerminalClosesFrame(t *testing.T) {
	a := New(nil, names)

	assert.Empty(t, a.Sub(sub(1, 1, 100, core.TypeMarker)))
	assert.Empty(t, a.Sub(sub(1, 2, 100, core.TypeRigid)))

	done := a.End(core.Event{Type: core.TypeFrame, ID: 1, Time: 100, Name: "frame", TypeName: "frame"})
	require.Len(t, done, 1)
	f := done[0]
	assert.Equal(t, core.TypeFrame, f.Type)
	assert.Equal(t, uint16(1), f.ID)
	assert.Equal(t, int64(100), f.Time)
	require.Len(t, f.Children, 2)
	assert.Equal(t, uint16(1), f.Children[0].ID)
	assert.Equal(t, uint16(2), f.Children[1].ID)
	assert.NotNil(t, f.Find("rigids"))
	assert.Nil(t, a.Current())
}

func TestAssembler_NewTimeSupersedes(t *testing.T) {
	a := New(nil, names)
	a.Sub(sub(1, 1, 100, core.TypeMarker))

	done := a.Sub(sub(1, 1, 101, core.TypeMarker))
	require.Len(t, done, 1)
	assert.Equal(t, int64(100), done[0].Time)
	assert.Equal(t, "frame", done[0].Name)
	require.NotNil(t, a.Current())
	assert.Equal(t, int64(101), a.Current().Time)
}

func TestAssembler_NewIDSupersedes(t *testing.T) {
	a := New(nil, names)
	a.Sub(sub(1, 1, 100, core.TypeMarker))

	done := a.Sub(sub(2, 1, 100, core.TypeMarker))
	require.Len(t, done, 1)
	assert.Equal(t, uint16(1), done[0].ID)
	assert.Equal(t, uint16(2), a.Current().ID)
}

func TestAssembler_MismatchedTerminal(t *testing.T) {
	a := New(nil, names)
	a.Sub(sub(1, 1, 100, core.TypeMarker))

	done := a.End(core.Event{Type: core.TypeFrame, ID: 1, Time: 200})
	require.Len(t, done, 2)
	assert.Equal(t, int64(100), done[0].Time)
	assert.Len(t, done[0].Children, 1)
	assert.Equal(t, int64(200), done[1].Time)
	assert.Empty(t, done[1].Children)
}

func TestAssembler_DropsUnresolved(t *testing.T) {
	a := New(nil, names)
	assert.Empty(t, a.Sub(sub(1, 9, 100, core.TypeMarker)))
	assert.Nil(t, a.Current())
}

func TestAssembler_Deterministic(t *testing.T) {
	input := []core.Event{
		sub(1, 1, 10, core.TypeMarker),
		sub(1, 2, 10, core.TypeRigid),
		{Type: core.TypeFrame, ID: 1, Time: 10},
		sub(1, 1, 11, core.TypeMarker),
		sub(1, 1, 12, core.TypeMarker),
		sub(1, 2, 12, core.TypeRigid),
		{Type: core.TypeFrame, ID: 1, Time: 12},
	}

	run := func() []string {
		a := New(nil, names)
		var out []string
		for _, e := range input {
			var done []*core.Event
			if e.Type == core.TypeFrame {
				done = a.End(e)
			} else {
				done = a.Sub(e)
			}
			for _, f := range done {
				out = append(out, fmt.Sprintf("%d@%d:%d", f.ID, f.Time, len(f.Children)))
			}
		}
		return out
	}

	first := run()
	assert.Equal(t, []string{"1@10:2", "1@11:1", "1@12:2"}, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run())
	}
}

func TestAssembler_FlushAndReset(t *testing.T) {
	a := New(nil, nil)
	a.Sub(sub(3, 1, 5, core.TypeMarker))
	f := a.Flush()
	require.NotNil(t, f)
	assert.Equal(t, uint16(3), f.ID)
	assert.Nil(t, a.Flush())

	a.Sub(sub(3, 1, 5, core.TypeMarker))
	a.Reset()
	assert.Nil(t, a.Current())
}
