package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/noah-isme/cuaderno-api/internal/models"
	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
)

func stageNames(pipeline mongo.Pipeline) []string {
	names := make([]string, 0, len(pipeline))
	for _, stage := range pipeline {
		names = append(names, stage[0].Key)
	}
	return names
}

func TestAttendanceMatchBuildsFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	course := 4
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 2, 23, 59, 59, 0, time.UTC)

	match, err := attendanceMatch(oid.Hex(), &course, "C", &from, &to)
	require.NoError(t, err)
	assert.Equal(t, oid, match["studentRef"])
	assert.Equal(t, 4, match["course"])
	assert.Equal(t, "C", match["section"])
	assert.Equal(t, bson.M{"$gte": from, "$lte": to}, match["date"])
}

func TestAttendanceMatchEmptyFilter(t *testing.T) {
	match, err := attendanceMatch("", nil, "", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, match)
}

func TestAttendanceMatchRejectsBadStudentID(t *testing.T) {
	_, err := attendanceMatch("not-an-object-id", nil, "", nil, nil)
	assert.Error(t, err)
}

func TestSummaryPipelineStages(t *testing.T) {
	pipeline := summaryPipeline(bson.M{"section": "A"})
	assert.Equal(t, []string{"$match", "$group", "$lookup", "$unwind", "$project", "$sort"}, stageNames(pipeline))

	group := pipeline[1][0].Value.(bson.M)
	assert.Equal(t, "$studentRef", group["_id"])
	assert.Equal(t, countIf(models.AttendanceStatusExcused), group["excusedCount"])
}

func TestHistoryPipelinePaginatesBeforeLookup(t *testing.T) {
	pipeline := historyPipeline(bson.M{}, 40, 20)
	assert.Equal(t, []string{"$match", "$sort", "$skip", "$limit", "$lookup", "$lookup"}, stageNames(pipeline))
	assert.Equal(t, int64(40), pipeline[2][0].Value)
	assert.Equal(t, int64(20), pipeline[3][0].Value)
}

func TestUpsertModelRejectsMalformedIDs(t *testing.T) {
	mark := sampleMark("bad")
	_, err := upsertModel(mark)
	assert.Error(t, err)
}

func TestAttendanceDocumentRecordKeepsDanglingJoinsEmpty(t *testing.T) {
	doc := attendanceDocument{ID: primitive.NewObjectID(), StudentRef: primitive.NewObjectID(), Status: "Present"}
	rec := doc.record()
	assert.Nil(t, rec.Student)
	assert.Nil(t, rec.Author)
	assert.Equal(t, doc.StudentRef.Hex(), rec.StudentID)
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	var dest []string
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", []string{"v"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "k*"))
	n, err := repo.Incr(context.Background(), "counter")
	assert.NoError(t, err)
	assert.Zero(t, n)
}
