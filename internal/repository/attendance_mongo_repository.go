package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/cuaderno-api/internal/models"
)

const attendanceCollection = "attendance"

type attendanceDocument struct {
	ID         primitive.ObjectID  `bson:"_id"`
	Date       time.Time           `bson:"date"`
	StudentRef primitive.ObjectID  `bson:"studentRef"`
	Status     string              `bson:"status"`
	Course     int                 `bson:"course"`
	Section    string              `bson:"section"`
	AuthorID   primitive.ObjectID  `bson:"authorId"`
	CreatedAt  time.Time           `bson:"createdAt"`
	Student    []models.StudentRef `bson:"student,omitempty"`
	Author     []models.AuthorRef  `bson:"author,omitempty"`
}

func (d attendanceDocument) record() models.AttendanceRecord {
	rec := models.AttendanceRecord{
		ID:        d.ID.Hex(),
		Date:      d.Date,
		StudentID: d.StudentRef.Hex(),
		Status:    models.AttendanceStatus(d.Status),
		Course:    d.Course,
		Section:   d.Section,
		AuthorID:  d.AuthorID.Hex(),
		CreatedAt: d.CreatedAt,
	}
	if len(d.Student) > 0 {
		student := d.Student[0]
		rec.Student = &student
	}
	if len(d.Author) > 0 {
		author := d.Author[0]
		rec.Author = &author
	}
	return rec
}

type summaryDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	Student      models.StudentRef  `bson:"student"`
	PresentCount int                `bson:"presentCount"`
	AbsentCount  int                `bson:"absentCount"`
	LateCount    int                `bson:"lateCount"`
	ExcusedCount int                `bson:"excusedCount"`
}

// AttendanceMongoRepository persists attendance records in MongoDB.
type AttendanceMongoRepository struct {
	coll *mongo.Collection
}

// NewAttendanceMongoRepository constructs an AttendanceMongoRepository.
func NewAttendanceMongoRepository(db *mongo.Database) *AttendanceMongoRepository {
	return &AttendanceMongoRepository{coll: db.Collection(attendanceCollection)}
}

// EnsureIndexes creates the (student, date) uniqueness index and the course listing index.
func (r *AttendanceMongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "studentRef", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("attendance_student_date_key"),
		},
		{
			Keys:    bson.D{{Key: "course", Value: 1}, {Key: "section", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("attendance_course_section_date_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("create attendance indexes: %w", err)
	}
	return nil
}

// UpsertMany sends every mark as an unordered bulk of upserts keyed by (student, date).
// Per-element write errors are reported in the result; only transport-level failures
// are returned as an error.
func (r *AttendanceMongoRepository) UpsertMany(ctx context.Context, marks []models.AttendanceMark) (models.BulkMarkResult, error) {
	var result models.BulkMarkResult
	if len(marks) == 0 {
		return result, nil
	}

	writes := make([]mongo.WriteModel, 0, len(marks))
	for _, mark := range marks {
		model, err := upsertModel(mark)
		if err != nil {
			return result, err
		}
		writes = append(writes, model)
	}

	res, err := r.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if res != nil {
		result.Upserted = int(res.UpsertedCount + res.InsertedCount)
		result.Modified = int(res.ModifiedCount)
	}
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil {
			return result, fmt.Errorf("bulk upsert attendance: %w", err)
		}
		for _, writeErr := range bulkErr.WriteErrors {
			failure := models.MarkFailure{Index: writeErr.Index, Err: mongo.WriteException{WriteErrors: mongo.WriteErrors{writeErr.WriteError}}}
			if writeErr.Index >= 0 && writeErr.Index < len(marks) {
				failure.StudentID = marks[writeErr.Index].StudentID
			}
			result.Failures = append(result.Failures, failure)
		}
	}
	return result, nil
}

func upsertModel(mark models.AttendanceMark) (mongo.WriteModel, error) {
	studentRef, err := primitive.ObjectIDFromHex(mark.StudentID)
	if err != nil {
		return nil, fmt.Errorf("invalid student id %q: %w", mark.StudentID, err)
	}
	authorID, err := primitive.ObjectIDFromHex(mark.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("invalid author id %q: %w", mark.AuthorID, err)
	}
	return mongo.NewUpdateOneModel().
		SetFilter(bson.M{"studentRef": studentRef, "date": mark.Date}).
		SetUpdate(bson.M{"$set": bson.M{
			"studentRef": studentRef,
			"date":       mark.Date,
			"status":     string(mark.Status),
			"course":     mark.Course,
			"section":    mark.Section,
			"authorId":   authorID,
			"createdAt":  mark.MarkedAt,
		}}).
		SetUpsert(true), nil
}

func attendanceMatch(studentID string, course *int, section string, from, to *time.Time) (bson.M, error) {
	match := bson.M{}
	if studentID != "" {
		oid, err := primitive.ObjectIDFromHex(studentID)
		if err != nil {
			return nil, fmt.Errorf("invalid student id %q: %w", studentID, err)
		}
		match["studentRef"] = oid
	}
	if course != nil {
		match["course"] = *course
	}
	if section != "" {
		match["section"] = section
	}
	if from != nil || to != nil {
		dateRange := bson.M{}
		if from != nil {
			dateRange["$gte"] = *from
		}
		if to != nil {
			dateRange["$lte"] = *to
		}
		match["date"] = dateRange
	}
	return match, nil
}

func historyPipeline(match bson.M, skip, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}}},
		bson.D{{Key: "$skip", Value: int64(skip)}},
		bson.D{{Key: "$limit", Value: int64(limit)}},
		lookupOne(studentsCollection, "$studentRef", bson.M{"_id": 0, "name": 1, "course": 1, "section": 1, "code": 1}, "student"),
		lookupOne(usersCollection, "$authorId", bson.M{"_id": 0, "name": 1, "role": 1, "email": 1}, "author"),
	}
}

// lookupOne joins the document referenced by ref, keeping only the projected fields.
// Dangling references produce an empty array rather than dropping the record.
func lookupOne(from, ref string, project bson.M, as string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.M{
		"from": from,
		"let":  bson.M{"ref": ref},
		"pipeline": bson.A{
			bson.M{"$match": bson.M{"$expr": bson.M{"$eq": bson.A{"$_id", "$$ref"}}}},
			bson.M{"$project": project},
		},
		"as": as,
	}}}
}

func countIf(status models.AttendanceStatus) bson.M {
	return bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", string(status)}}, 1, 0}}}
}

func summaryPipeline(match bson.M) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":          "$studentRef",
			"presentCount": countIf(models.AttendanceStatusPresent),
			"absentCount":  countIf(models.AttendanceStatusAbsent),
			"lateCount":    countIf(models.AttendanceStatusLate),
			"excusedCount": countIf(models.AttendanceStatusExcused),
		}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         studentsCollection,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "student",
		}}},
		bson.D{{Key: "$unwind", Value: "$student"}},
		bson.D{{Key: "$project", Value: bson.M{
			"_id":          1,
			"student":      bson.M{"name": "$student.name", "course": "$student.course", "section": "$student.section", "code": "$student.code"},
			"presentCount": 1,
			"absentCount":  1,
			"lateCount":    1,
			"excusedCount": 1,
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "student.name", Value: 1}, {Key: "_id", Value: 1}}}},
	}
}

// List returns one page of attendance ordered by date descending, enriched with the
// student and author projections.
func (r *AttendanceMongoRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	match, err := attendanceMatch(filter.StudentID, filter.Course, filter.Section, filter.DateFrom, filter.DateTo)
	if err != nil {
		return nil, err
	}
	cursor, err := r.coll.Aggregate(ctx, historyPipeline(match, filter.Offset(), filter.PageSize))
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	var docs []attendanceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode attendance: %w", err)
	}
	records := make([]models.AttendanceRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.record())
	}
	return records, nil
}

// Count returns the number of records matching the filter, ignoring pagination.
func (r *AttendanceMongoRepository) Count(ctx context.Context, filter models.AttendanceFilter) (int, error) {
	match, err := attendanceMatch(filter.StudentID, filter.Course, filter.Section, filter.DateFrom, filter.DateTo)
	if err != nil {
		return 0, err
	}
	total, err := r.coll.CountDocuments(ctx, match)
	if err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return int(total), nil
}

// Summary aggregates status counters per student. The unwind after the lookup drops
// records whose student no longer exists.
func (r *AttendanceMongoRepository) Summary(ctx context.Context, filter models.AttendanceSummaryFilter) ([]models.AttendanceSummaryRow, error) {
	match, err := attendanceMatch("", filter.Course, filter.Section, filter.DateFrom, filter.DateTo)
	if err != nil {
		return nil, err
	}
	cursor, err := r.coll.Aggregate(ctx, summaryPipeline(match))
	if err != nil {
		return nil, fmt.Errorf("summarize attendance: %w", err)
	}
	var docs []summaryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode attendance summary: %w", err)
	}
	out := make([]models.AttendanceSummaryRow, 0, len(docs))
	for _, doc := range docs {
		out = append(out, models.AttendanceSummaryRow{
			StudentID:    doc.ID.Hex(),
			Student:      doc.Student,
			PresentCount: doc.PresentCount,
			AbsentCount:  doc.AbsentCount,
			LateCount:    doc.LateCount,
			ExcusedCount: doc.ExcusedCount,
		})
	}
	return out, nil
}
