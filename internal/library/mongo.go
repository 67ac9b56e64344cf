package library

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// MongoLibrary reads questions from a MongoDB collection.
type MongoLibrary struct {
	coll *mongo.Collection
}

var _ Library = (*MongoLibrary)(nil)

func NewMongoLibrary(coll *mongo.Collection) *MongoLibrary {
	return &MongoLibrary{coll: coll}
}

func (l *MongoLibrary) Fetch(ctx context.Context, refs []model.QuestionRef) ([]model.QuestionDocument, error) {
	refs = uniqueRefs(refs)
	if len(refs) == 0 {
		return nil, nil
	}
	want := make(map[model.QuestionRef]bool, len(refs))
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		want[r] = true
		ids = append(ids, r.QuestionID)
	}

	cur, err := l.coll.Find(ctx, bson.M{"questionID": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.QuestionDocument
	for cur.Next(ctx) {
		var q model.QuestionDocument
		if err := cur.Decode(&q); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		// A question ID filed under a different subject is not the referenced question.
		if !want[model.QuestionRef{QuestionID: q.QuestionID, SubjectID: q.SubjectID}] {
			continue
		}
		out = append(out, q)
	}
	return out, cur.Err()
}

// Put upserts a question by questionID and subjectID.
func (l *MongoLibrary) Put(ctx context.Context, doc model.QuestionDocument) error {
	if doc.QuestionID == "" || doc.SubjectID == "" {
		return model.Validation("InvalidQuestion", "questionID and subjectID are required")
	}
	filter := bson.M{"questionID": doc.QuestionID, "subjectID": doc.SubjectID}
	_, err := l.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert question %s: %w", doc.QuestionID, err)
	}
	return nil
}
