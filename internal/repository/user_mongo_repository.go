package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/noah-isme/cuaderno-api/internal/models"
)

const usersCollection = "users"

type userDocument struct {
	ID    primitive.ObjectID `bson:"_id"`
	Name  string             `bson:"name"`
	Email string             `bson:"email"`
	Role  string             `bson:"role"`
}

// UserMongoRepository resolves identities from MongoDB.
type UserMongoRepository struct {
	coll *mongo.Collection
}

// NewUserMongoRepository constructs a UserMongoRepository.
func NewUserMongoRepository(db *mongo.Database) *UserMongoRepository {
	return &UserMongoRepository{coll: db.Collection(usersCollection)}
}

// ValidID reports whether id is a hex encoded ObjectID.
func (r *UserMongoRepository) ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// FindByID returns a user by identifier.
func (r *UserMongoRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc userDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &models.User{
		ID:    doc.ID.Hex(),
		Name:  doc.Name,
		Email: doc.Email,
		Role:  models.UserRole(doc.Role),
	}, nil
}
