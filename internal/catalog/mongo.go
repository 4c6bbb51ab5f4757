package catalog

import (
	"context"
	"fmt"
	"regexp"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultMongoDatabase   = "music"
	defaultMongoCollection = "files"
)

// MongoCatalog reads the files collection.
//
// Documents look like:
//
//	{_id: ObjectId, fpath: "x/Artist/01.mp3", complete: 1, fingerprinted: 0,
//	 tags: {title, artist, album}, properties: {bitrate, channels}}
//
// Flags written as integers or booleans are both understood; a missing fingerprinted flag counts as unset.
type MongoCatalog struct {
	client *mongo.Client
	files  *mongo.Collection
}

type fileDocument struct {
	ID         bson.RawValue `bson:"_id"`
	Path       string        `bson:"fpath"`
	Tags       models.Tags   `bson:"tags"`
	Properties struct {
		Bitrate  float64 `bson:"bitrate"`
		Channels float64 `bson:"channels"`
	} `bson:"properties"`
}

func (d fileDocument) descriptor() models.FileDescriptor {
	return models.FileDescriptor{
		ID:   documentID(d.ID),
		Path: d.Path,
		Tags: d.Tags,
		Properties: models.Properties{
			Bitrate:  int(d.Properties.Bitrate),
			Channels: int(d.Properties.Channels),
		},
	}
}

// markUpdate builds the UpdateMany filter and update that flag ids as fingerprinted.
func markUpdate(ids []string) (bson.M, bson.M) {
	keys := make(bson.A, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, documentKey(id))
	}
	return bson.M{"_id": bson.M{"$in": keys}}, bson.M{"$set": bson.M{"fingerprinted": 1}}
}

// NewMongoCatalog connects to uri and verifies the primary is reachable.
func NewMongoCatalog(ctx context.Context, uri, database, collection string) (*MongoCatalog, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	if collection == "" {
		collection = defaultMongoCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", shared.ErrCatalogUnavailable, redact(uri), err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: ping %s: %v", shared.ErrCatalogUnavailable, redact(uri), err)
	}

	return &MongoCatalog{
		client: client,
		files:  client.Database(database).Collection(collection),
	}, nil
}

// pendingQuery builds the filter for complete, not yet fingerprinted files under f.
func pendingQuery(f Filter) bson.M {
	q := bson.M{
		"complete":      bson.M{"$in": bson.A{1, true}},
		"fingerprinted": bson.M{"$in": bson.A{0, false, nil}},
	}
	if prefix := f.Prefix(); prefix != "" {
		q["fpath"] = bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
	}
	return q
}

// Count implements [Catalog].
func (c *MongoCatalog) Count(ctx context.Context, f Filter) (int, error) {
	n, err := c.files.CountDocuments(ctx, pendingQuery(f))
	if err != nil {
		return 0, fmt.Errorf("count pending files: %w", err)
	}
	return int(n), nil
}

// Find implements [Catalog].
func (c *MongoCatalog) Find(ctx context.Context, f Filter) ([]models.FileDescriptor, error) {
	opts := options.Find().
		SetProjection(bson.M{"fpath": 1, "tags": 1, "properties": 1}).
		SetSort(bson.D{{Key: "fpath", Value: 1}})

	cur, err := c.files.Find(ctx, pendingQuery(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find pending files: %w", err)
	}
	defer cur.Close(ctx)

	var files []models.FileDescriptor
	for cur.Next(ctx) {
		var doc fileDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode file document: %w", err)
		}
		files = append(files, doc.descriptor())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate file documents: %w", err)
	}

	return files, nil
}

// MarkFingerprinted implements [Catalog].
func (c *MongoCatalog) MarkFingerprinted(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	filter, update := markUpdate(ids)
	res, err := c.files.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("mark %d files fingerprinted: %w", len(ids), err)
	}
	return res.ModifiedCount, nil
}

// Close implements [Catalog].
func (c *MongoCatalog) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// documentID renders an _id as the string carried through the pipeline.
func documentID(v bson.RawValue) string {
	switch v.Type {
	case bson.TypeObjectID:
		return v.ObjectID().Hex()
	case bson.TypeString:
		return v.StringValue()
	default:
		return v.String()
	}
}

// documentKey is the inverse of documentID for the common id types.
func documentKey(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}
