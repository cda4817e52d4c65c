package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focuskeep/focuskeep/pkg/models"
)

func TestFlagUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`true`, true},
		{`"true"`, true},
		{`1`, true},
		{`"1"`, true},
		{`false`, false},
		{`"false"`, false},
		{`0`, false},
		{`"0"`, false},
		{`null`, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f models.Flag
			require.NoError(t, json.Unmarshal([]byte(tt.input), &f))
			assert.Equal(t, tt.want, f.Bool())
		})
	}

	var f models.Flag
	assert.Error(t, json.Unmarshal([]byte(`"maybe"`), &f))
	assert.Error(t, json.Unmarshal([]byte(`2`), &f))
}

func TestFlagMarshalsAsPlainBool(t *testing.T) {
	data, err := json.Marshal(struct {
		Done models.Flag `json:"done"`
	}{Done: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"done":true}`, string(data))
}

func TestFlagRoundTripInsideTodo(t *testing.T) {
	// Legacy blob with loose boolean encodings decodes cleanly.
	blob := []byte(`{"id":"t1","title":"write report","done":"1","createdAt":1000,"archived":0}`)
	var todo models.Todo
	require.NoError(t, json.Unmarshal(blob, &todo))
	assert.True(t, todo.Done.Bool())
	assert.False(t, todo.Archived.Bool())

	out, err := json.Marshal(todo)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"done":true`)
}

func TestMigrateLegacyTimer(t *testing.T) {
	t.Run("existing focus wins", func(t *testing.T) {
		focus := &models.FocusState{ActiveTaskID: "t1", FocusedAt: 500}
		timer := &models.TimerState{ActiveTaskID: "t2", StartedAt: 900}
		got := models.MigrateLegacyTimer(focus, timer)
		assert.Same(t, focus, got)
	})

	t.Run("both absent", func(t *testing.T) {
		assert.Nil(t, models.MigrateLegacyTimer(nil, nil))
	})

	t.Run("timer becomes focus with embedded pomodoro", func(t *testing.T) {
		timer := &models.TimerState{
			ActiveTaskID:       "t1",
			StartedAt:          1500000,
			Duration:           1000,
			Type:               models.CycleWork,
			CompletedPomodoros: 2,
			Paused:             false,
		}
		got := models.MigrateLegacyTimer(nil, timer)
		require.NotNil(t, got)
		assert.Equal(t, "t1", got.ActiveTaskID)
		assert.Equal(t, int64(1500000), got.FocusedAt)
		require.NotNil(t, got.Pomodoro)
		assert.Equal(t, int64(1500000), got.Pomodoro.StartedAt)
		assert.Equal(t, int64(1000), got.Pomodoro.Duration)
		assert.Equal(t, models.CycleWork, got.Pomodoro.Type)
		assert.Equal(t, 2, got.Pomodoro.CompletedPomodoros)
		assert.False(t, got.Pomodoro.Paused.Bool())
	})

	t.Run("paused timer keeps remaining time", func(t *testing.T) {
		remaining := int64(330000)
		timer := &models.TimerState{
			ActiveTaskID:    "t9",
			StartedAt:       2000,
			Duration:        1500000,
			Type:            models.CycleShortBreak,
			Paused:          true,
			PausedRemaining: &remaining,
		}
		got := models.MigrateLegacyTimer(nil, timer)
		require.NotNil(t, got)
		require.NotNil(t, got.Pomodoro)
		assert.True(t, got.Pomodoro.Paused.Bool())
		require.NotNil(t, got.Pomodoro.PausedRemaining)
		assert.Equal(t, remaining, *got.Pomodoro.PausedRemaining)
	})
}

func TestDefaultSettings(t *testing.T) {
	def := models.DefaultSettings()
	assert.Equal(t, int64(25*60*1000), def.WorkMs)
	assert.Equal(t, int64(5*60*1000), def.ShortBreakMs)
	assert.Equal(t, int64(15*60*1000), def.LongBreakMs)
	assert.Equal(t, models.ThemeSignal, def.Theme)
}

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := models.NewID()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
