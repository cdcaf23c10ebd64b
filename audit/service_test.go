package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kasuganosora/lifequest/server/model"
	"github.com/kasuganosora/lifequest/server/testutil"
)

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger())

	svc.Log(Entry{
		TraceID:    "trace-123",
		UserID:     "u-1",
		Action:     "account.login",
		Request:    map[string]string{"username": "alice"},
		Response:   map[string]bool{"ok": true},
		IP:         "127.0.0.1",
		DurationMs: 42,
	})
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	assert.Equal(t, "u-1", logs[0].UserID)
	assert.Equal(t, "account.login", logs[0].Action)
	assert.Equal(t, "127.0.0.1", logs[0].IP)
	assert.Equal(t, 42, logs[0].DurationMs)
	assert.JSONEq(t, `{"username":"alice"}`, string(logs[0].Request))
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger())

	for i := 0; i < 250; i++ {
		svc.Log(Entry{Action: "batch"})
	}
	svc.Stop(context.Background())

	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Count(&count).Error)
	assert.Equal(t, int64(250), count)
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger())
	defer svc.Stop(context.Background())

	svc.Log(Entry{Action: "timer"})

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.AuditLog{}).Count(&count)
		return count == 1
	}, 3*flushEvery, 100*time.Millisecond)
}

func TestLog_NilPayloads(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger())

	svc.Log(Entry{Action: "no_payload"})
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].Request)
}

func TestStop_IdempotentAndLeakFree(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	svc := New(db, testutil.Logger())
	svc.Stop(context.Background())
	svc.Stop(context.Background())
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, testutil.Logger())
	for i := 0; i < queueSize+10; i++ {
		svc.Log(Entry{Action: "flood"})
	}
	svc.Stop(context.Background())

	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Count(&count).Error)
	assert.LessOrEqual(t, count, int64(queueSize+10))
	assert.Positive(t, count)
}
