package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogicalDate(t *testing.T) {
	d, err := ParseLogicalDate("2024-08-14")
	require.NoError(t, err)
	assert.Equal(t, "2024-08-14", d.String())
	assert.Equal(t, 2024, d.Year())

	_, err = ParseLogicalDate("14.08.2024")
	assert.Error(t, err)
}

func TestNewLogicalDateTruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	d := NewLogicalDate(time.Date(2024, 8, 15, 1, 30, 0, 0, loc))
	assert.Equal(t, "2024-08-14", d.String())
	assert.Equal(t, "2024-08-13", d.AddDays(-1).String())
}

func TestRunContextIsExtendOnly(t *testing.T) {
	d, _ := ParseLogicalDate("2024-08-14")
	rc := NewRunContext("run-1", d)

	next, err := rc.WithOutputs(map[string]string{"extract.path": "s3://users/a.csv"})
	require.NoError(t, err)

	_, ok := rc.Output("extract.path")
	assert.False(t, ok, "original context must not see later outputs")

	v, ok := next.Output("extract.path")
	require.True(t, ok)
	assert.Equal(t, "s3://users/a.csv", v)

	_, err = next.WithOutputs(map[string]string{"extract.path": "s3://users/b.csv"})
	assert.Error(t, err)

	leaked := next.Outputs()
	leaked["extract.path"] = "tampered"
	v, _ = next.Output("extract.path")
	assert.Equal(t, "s3://users/a.csv", v)
}

func TestRunContextWithStageCopiesOutputs(t *testing.T) {
	d, _ := ParseLogicalDate("2024-08-14")
	rc, err := NewRunContext("run-1", d).WithOutputs(map[string]string{"k": "v"})
	require.NoError(t, err)

	staged := rc.WithStage(StageLoad)
	assert.Equal(t, StageLoad, staged.Stage)
	assert.Equal(t, StageID(""), rc.Stage)

	extended, err := staged.WithOutputs(map[string]string{"k2": "v2"})
	require.NoError(t, err)
	_, ok := rc.Output("k2")
	assert.False(t, ok)
	_, ok = extended.Output("k2")
	assert.True(t, ok)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to StageState
		want     bool
	}{
		{StatePending, StateRunning, true},
		{StatePending, StateSkipped, true},
		{StateRunning, StateSucceeded, true},
		{StateRunning, StateRetrying, true},
		{StateRunning, StateFailed, true},
		{StateRetrying, StateRunning, true},
		{StateRetrying, StateFailed, true},
		{StateRetrying, StateSucceeded, false},
		{StatePending, StateSucceeded, false},
		{StateFailed, StateRunning, false},
		{StateSucceeded, StateRunning, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("boom")

	missing := fmt.Errorf("load: %w", ResourceMissing("get object", base))
	assert.Equal(t, KindResourceMissing, KindOf(missing))
	assert.True(t, IsPermanent(missing))
	assert.ErrorIs(t, missing, base)

	assert.Equal(t, KindDataFormat, KindOf(DataFormat("decode", base)))
	assert.False(t, IsPermanent(DataFormat("decode", base)))
	assert.Equal(t, KindTransientIO, KindOf(base))
	assert.Contains(t, TransientIO("fetch", base).Error(), "transient_io: fetch: boom")
}

func TestRetryPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultRetryPolicy().Validate())
	assert.Equal(t, 3, DefaultRetryPolicy().MaxAttempts)
	assert.Equal(t, 15*time.Second, DefaultRetryPolicy().Delay)
	assert.Error(t, RetryPolicy{MaxAttempts: 0}.Validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 1, Delay: -time.Second}.Validate())
}

func TestUserRecordRowFollowsColumnOrder(t *testing.T) {
	u := UserRecord{
		UserName: "Ivan Petrov", DateOfBirth: "1990-01-02", DateOfRegistration: "2024-08-14",
		Phone: "+7", Login: "ivan", Password: "pw", Email: "i@x.ru",
		Gender: "male", Country: "Russia", Region: "Moscow",
	}
	row := u.Row()
	require.Len(t, row, len(UserColumns))
	assert.Equal(t, "Ivan Petrov", row[0])
	assert.Equal(t, "2024-08-14", row[2])
	assert.Equal(t, "Moscow", row[9])
}
