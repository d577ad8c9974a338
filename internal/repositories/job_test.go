package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPendingJobsHonoursBackoff(t *testing.T) {
	db, rec := newDryRunDB(t)
	repo := NewJobRepository(db)

	_, err := repo.FindPendingJobs(context.Background(), 10)
	require.NoError(t, err)

	stmt := rec.last(t)
	assert.Contains(t, stmt, `FROM "processing_jobs"`)
	where := afterKeyword(t, stmt, "WHERE")
	assert.Contains(t, where, "status = ")
	assert.Contains(t, where, "not_before IS NULL OR not_before <= ")
	assert.Contains(t, stmt, "ORDER BY created_at ASC")
}

func TestRequeueStaleOnlyTouchesOldRunningJobs(t *testing.T) {
	db, rec := newDryRunDB(t)
	repo := NewJobRepository(db)

	_, err := repo.RequeueStale(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	stmt := rec.last(t)
	assert.Contains(t, stmt, `UPDATE "processing_jobs" SET`)
	where := afterKeyword(t, stmt, "WHERE")
	assert.Contains(t, where, "status = ")
	assert.Contains(t, where, "updated_at < ")
}

func TestFindUnnotifiedSelectsTaggedFaceJobs(t *testing.T) {
	db, rec := newDryRunDB(t)
	repo := NewJobRepository(db)

	_, err := repo.FindUnnotified(context.Background(), 10)
	require.NoError(t, err)

	where := afterKeyword(t, rec.last(t), "WHERE")
	assert.Contains(t, where, "status IN ")
	assert.Contains(t, where, "kind = ")
	assert.Contains(t, where, "tag <> ''")
	assert.Contains(t, where, "notified = ")
}
