package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/cuaderno-api/internal/models"
)

const studentsCollection = "students"

type studentDocument struct {
	ID       primitive.ObjectID `bson:"_id"`
	Name     string             `bson:"name"`
	Course   int                `bson:"course"`
	Section  string             `bson:"section"`
	Code     string             `bson:"code"`
	CodeUsed bool               `bson:"codeUsed"`
}

func (d studentDocument) model() models.Student {
	return models.Student{
		ID:       d.ID.Hex(),
		Name:     d.Name,
		Course:   d.Course,
		Section:  d.Section,
		Code:     d.Code,
		CodeUsed: d.CodeUsed,
	}
}

// StudentMongoRepository reads the student directory from MongoDB.
type StudentMongoRepository struct {
	coll *mongo.Collection
}

// NewStudentMongoRepository constructs a StudentMongoRepository.
func NewStudentMongoRepository(db *mongo.Database) *StudentMongoRepository {
	return &StudentMongoRepository{coll: db.Collection(studentsCollection)}
}

// ValidID reports whether id is a hex encoded ObjectID.
func (r *StudentMongoRepository) ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// EnsureIndexes creates the directory listing index.
func (r *StudentMongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "course", Value: 1}, {Key: "section", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetName("students_course_section_name_idx"),
	})
	if err != nil {
		return fmt.Errorf("create student indexes: %w", err)
	}
	return nil
}

// FindByID fetches a single student.
func (r *StudentMongoRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc studentDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	student := doc.model()
	return &student, nil
}

// FindByIDs returns the students whose ids are in the list. Missing ids are simply absent.
func (r *StudentMongoRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	oids, err := objectIDs(ids)
	if err != nil {
		return nil, err
	}
	if len(oids) == 0 {
		return []models.Student{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": oids}}, nil)
}

// List returns students ordered by course, section and name.
func (r *StudentMongoRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	query := bson.M{}
	if filter.Course != nil {
		query["course"] = *filter.Course
	}
	if filter.Section != "" {
		query["section"] = filter.Section
	}
	opts := options.Find().SetSort(bson.D{{Key: "course", Value: 1}, {Key: "section", Value: 1}, {Key: "name", Value: 1}})
	return r.find(ctx, query, opts)
}

func (r *StudentMongoRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]models.Student, error) {
	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	var docs []studentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode students: %w", err)
	}
	students := make([]models.Student, 0, len(docs))
	for _, doc := range docs {
		students = append(students, doc.model())
	}
	return students, nil
}

func objectIDs(ids []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid object id %q: %w", id, err)
		}
		out = append(out, oid)
	}
	return out, nil
}
