package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/procurely/contracting-api/internal/contract"
)

// MongoRepo is the MongoDB-backed repository. One document per contract,
// keyed by _id, with a stored rev token for optimistic concurrency and a
// (dateModified, _id) index backing the listing/feed engine.
type MongoRepo struct {
	col   *mongo.Collection
	clock func() time.Time
}

// NewMongoRepo wraps the given collection and ensures the listing index.
func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "dateModified", Value: 1}, {Key: "_id", Value: 1}}}
	col.Indexes().CreateOne(context.Background(), idx)
	return &MongoRepo{col: col, clock: time.Now}
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*contract.Contract, error) {
	var raw bson.Raw
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, contract.ErrNotFound
		}
		return nil, err
	}
	docType, _ := raw.Lookup("doc_type").StringValueOK()
	if docType == contract.DocTypeArchived {
		return nil, contract.ErrArchived
	}
	if docType != contract.DocTypeContract {
		return nil, contract.ErrNotFound
	}
	var c contract.Contract
	if err := bson.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	c.DateModified = c.DateModified.UTC()
	return &c, nil
}

func (m *MongoRepo) Insert(ctx context.Context, c *contract.Contract, author string) error {
	c.DocType = contract.DocTypeContract
	c.Rev = ""
	seal(c, map[string]any{}, author, m.clock())
	c.Rev = NewRevToken("")
	if _, err := m.col.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return contract.ErrConflict
		}
		return err
	}
	return nil
}

func (m *MongoRepo) Save(ctx context.Context, c *contract.Contract, src map[string]any, author string) error {
	loadedRev := c.Rev
	if !seal(c, src, author, m.clock()) {
		return nil
	}
	c.Rev = NewRevToken(loadedRev)
	res, err := m.col.ReplaceOne(ctx, bson.M{"_id": c.ID, "rev": loadedRev}, c)
	if err != nil {
		c.Rev = loadedRev
		return err
	}
	if res.MatchedCount == 0 {
		// rev token moved under us (or the document vanished)
		c.Rev = loadedRev
		if err := m.col.FindOne(ctx, bson.M{"_id": c.ID}).Err(); err == mongo.ErrNoDocuments {
			return contract.ErrNotFound
		}
		return contract.ErrConflict
	}
	return nil
}

func (m *MongoRepo) List(ctx context.Context, opts ListOptions) ([]ListItem, error) {
	filter := bson.M{"doc_type": contract.DocTypeContract}
	switch opts.Mode {
	case "test":
		filter["mode"] = "test"
	case "_all_":
	default:
		filter["mode"] = bson.M{"$ne": "test"}
	}
	if opts.Offset != nil {
		if opts.Descending {
			filter["dateModified"] = bson.M{"$lt": *opts.Offset}
		} else {
			filter["dateModified"] = bson.M{"$gt": *opts.Offset}
		}
	}

	dir := 1
	if opts.Descending {
		dir = -1
	}
	proj := bson.M{"_id": 1, "dateModified": 1}
	for _, f := range opts.OptFields {
		proj[f] = 1
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "dateModified", Value: dir}, {Key: "_id", Value: dir}}).
		SetProjection(proj)
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := m.col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []ListItem{}
	for cur.Next(ctx) {
		var row bson.M
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		item := ListItem{}
		if id, ok := row["_id"].(string); ok {
			item.ID = id
		}
		if dm, ok := row["dateModified"].(primitive.DateTime); ok {
			item.DateModified = dm.Time().UTC()
		}
		if len(opts.OptFields) > 0 {
			item.Fields = map[string]any{}
			for _, f := range opts.OptFields {
				if v, ok := row[f]; ok {
					item.Fields[f] = v
				}
			}
		}
		out = append(out, item)
	}
	return out, cur.Err()
}
