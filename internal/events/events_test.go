package events

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventData_Types(t *testing.T) {
	tests := []struct {
		data EventData
		want EventType
	}{
		{&RunStartedData{}, RunStarted},
		{&RowRejectedData{}, RowRejected},
		{&SnapshotBuiltData{}, SnapshotBuilt},
		{&DuplicatePeriodData{}, DuplicatePeriod},
		{&PeriodCommittedData{}, PeriodCommitted},
		{&DigestSkippedData{}, DigestSkipped},
		{&NotificationData{Channel: "telegram"}, NotificationSent},
		{&NotificationData{Channel: "telegram", Error: "timeout"}, NotificationFailed},
		{&RunFailedData{}, RunFailed},
		{&RunFinishedData{}, RunFinished},
		{&BackupData{Key: "k"}, BackupCompleted},
		{&BackupData{Error: "denied"}, BackupFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.data.EventType())
		})
	}
}

func TestEventWithData_JSONRoundTrip(t *testing.T) {
	in := EventWithData{
		Type:      PeriodCommitted,
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Module:    "pipeline",
		Data: &PeriodCommittedData{
			RunID:     "r1",
			Period:    "2025-01-02",
			Baseline:  "2025-01-01",
			Records:   3,
			Movers:    1,
			NetChange: 5,
		},
	}

	raw, err := json.Marshal(&in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"period_key":"2025-01-02"`)

	var out EventWithData
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Module, out.Module)
	assert.Equal(t, in.Data, out.Data)
}

func TestEventWithData_UnknownType(t *testing.T) {
	var out EventWithData
	require.NoError(t, json.Unmarshal([]byte(`{"type":"SOMETHING","module":"x","data":{"a":1}}`), &out))

	generic, ok := out.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, EventType("SOMETHING"), generic.EventType())
	assert.Equal(t, float64(1), generic.Data["a"])
}

func TestManager_EmitAndRecent(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(zerolog.New(&buf).Level(zerolog.DebugLevel))

	var received []EventType
	m.Subscribe(func(e EventWithData) { received = append(received, e.Type) })

	m.Emit("pipeline", &RunStartedData{RunID: "r1"})
	m.Emit("pipeline", &NotificationData{RunID: "r1", Channel: "telegram", Error: "boom"})

	assert.Equal(t, []EventType{RunStarted, NotificationFailed}, received)

	recent := m.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, NotificationFailed, recent[0].Type, "newest first")
	assert.Equal(t, "pipeline", recent[1].Module)

	assert.Len(t, m.Recent(1), 1)
	assert.Contains(t, buf.String(), `"event_type":"NOTIFICATION_FAILED"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestManager_RecentIsBounded(t *testing.T) {
	m := NewManager(zerolog.Nop())
	for i := 0; i < recentLimit+25; i++ {
		m.Emit("test", &RowRejectedData{Line: i})
	}

	recent := m.Recent(0)
	require.Len(t, recent, recentLimit)
	assert.Equal(t, recentLimit+24, recent[0].Data.(*RowRejectedData).Line)
}

func TestManager_NilIsSafe(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() { m.Emit("x", &RunStartedData{}) })
}
