package mongodb

import (
	"context"
	"errors"

	"github.com/goevery/realtime/internal/auth"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Profile is the document synced into the profiles collection by the blog
// backend, keyed by user id.
type Profile struct {
	UserId   string `bson:"_id"`
	Username string `bson:"username"`
	FullName string `bson:"full_name"`
	Image    string `bson:"image"`
}

type IdentityStore struct {
	collection *mongo.Collection
}

func NewIdentityStore(client *mongo.Client, database string) *IdentityStore {
	collection := client.Database(database).Collection("profiles")

	return &IdentityStore{
		collection,
	}
}

func (s *IdentityStore) Setup(ctx context.Context) error {
	usernameIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "username", Value: 1}},
	}

	_, err := s.collection.Indexes().CreateOne(ctx, usernameIndexModel)

	return err
}

func (s *IdentityStore) Lookup(ctx context.Context, userId string) (auth.Profile, error) {
	opts := options.FindOne().
		SetProjection(bson.D{
			{Key: "username", Value: 1},
			{Key: "full_name", Value: 1},
			{Key: "image", Value: 1},
		})

	var profile Profile

	err := s.collection.FindOne(ctx, bson.M{"_id": userId}, opts).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return auth.Profile{}, auth.ErrUnknownUser
	}
	if err != nil {
		return auth.Profile{}, err
	}

	return auth.Profile{
		UserId:   profile.UserId,
		Username: profile.Username,
		FullName: profile.FullName,
		Image:    profile.Image,
	}, nil
}
