package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"OwlInfo", &OwlInfo{}, "owl_infos"},
		{"Recording", &Recording{}, "recordings"},
		{"Tracker", &Tracker{}, "trackers"},
		{"Device", &Device{}, "devices"},
		{"MarkerSample", &MarkerSample{}, "marker_samples"},
		{"RigidSample", &RigidSample{}, "rigid_samples"},
		{"ServerError", &ServerError{}, "server_errors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModels_AllTabled(t *testing.T) {
	for _, m := range DatabaseModels {
		_, ok := m.(interface{ TableName() string })
		assert.True(t, ok, "%T has no TableName", m)
	}
}

func TestRecording_BeforeCreate(t *testing.T) {
	r := &Recording{}
	require.NoError(t, r.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, r.ID)

	fixed := uuid.MustParse("8d3c4f3a-2a6e-4c44-9a55-5c1f6e0b7a10")
	r = &Recording{ID: fixed}
	require.NoError(t, r.BeforeCreate(nil))
	assert.Equal(t, fixed, r.ID)
}
