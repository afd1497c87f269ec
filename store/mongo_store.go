package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	mongoCollection = "documents"
	mongoDocField   = "doc"
	mongoRevField   = "_rev"
)

// MongoBackend stores each document as {_id: key, doc: <document>, _rev: n}
// in a single collection. Sessions are driver sessions over the client pool.
type MongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoBackend(client *mongo.Client, database string) *MongoBackend {
	return &MongoBackend{
		client: client,
		coll:   client.Database(database).Collection(mongoCollection),
	}
}

func (m *MongoBackend) Name() string { return BackendMongo }

func (m *MongoBackend) Connect(ctx context.Context) (Session, error) {
	sess, err := m.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("%w: mongo: %v", ErrUnavailable, err)
	}
	return &mongoSession{coll: m.coll, sess: sess}, nil
}

func (m *MongoBackend) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: mongo: %v", ErrUnavailable, err)
	}
	return nil
}

func (m *MongoBackend) Close() error {
	return m.client.Disconnect(context.Background())
}

func mongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		return fmt.Errorf("%w: mongo: %v", ErrWriteIncomplete, err)
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && !ce.HasErrorLabel("NetworkError") {
		return fmt.Errorf("%w: mongo: %v", ErrWriteIncomplete, err)
	}
	return fmt.Errorf("%w: mongo: %v", ErrUnavailable, err)
}

// mongoPath maps a document path onto the stored field name.
func mongoPath(path string) (string, error) {
	field, err := Field(path)
	if err != nil {
		return "", err
	}
	if field == "" {
		return mongoDocField, nil
	}
	return mongoDocField + "." + field, nil
}

type mongoSession struct {
	coll *mongo.Collection
	sess mongo.Session
}

func (s *mongoSession) ctx(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, s.sess)
}

// load returns the value at path together with the document revision.
func (s *mongoSession) load(ctx context.Context, key, path string) (json.RawMessage, int64, error) {
	field, err := Field(path)
	if err != nil {
		return nil, 0, err
	}
	target, _ := mongoPath(path)

	opts := options.FindOne().SetProjection(bson.M{target: 1, mongoRevField: 1})
	raw, err := s.coll.FindOne(s.ctx(ctx), bson.M{"_id": key}, opts).Raw()
	if err != nil {
		return nil, 0, mongoError(err)
	}

	var meta struct {
		Rev int64 `bson:"_rev"`
	}
	if err := bson.Unmarshal(raw, &meta); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", key, err)
	}

	lookup := []string{mongoDocField}
	if field != "" {
		lookup = append(lookup, field)
	}
	value, err := raw.LookupErr(lookup...)
	if err != nil {
		return nil, 0, ErrNotFound
	}
	data, err := rawValueJSON(value)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", key, err)
	}
	return data, meta.Rev, nil
}

// rawValueJSON renders a BSON value as relaxed extended JSON, which for the
// types written by this package is plain JSON.
func rawValueJSON(value bson.RawValue) (json.RawMessage, error) {
	wrapped, err := bson.Marshal(bson.D{{Key: "v", Value: value}})
	if err != nil {
		return nil, err
	}
	ext, err := bson.MarshalExtJSON(bson.Raw(wrapped), false, false)
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(ext, &out); err != nil {
		return nil, err
	}
	return out["v"], nil
}

// bsonValue decodes JSON for storage, keeping integral numbers as int64 so
// they read back without a fractional part.
func bsonValue(value any) (any, error) {
	data, err := encode(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: decode value: %v", ErrWriteIncomplete, err)
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}

func (s *mongoSession) Get(ctx context.Context, key, path string) (json.RawMessage, error) {
	data, _, err := s.load(ctx, key, path)
	return data, err
}

func (s *mongoSession) Set(ctx context.Context, key, path string, value any) error {
	target, err := mongoPath(path)
	if err != nil {
		return err
	}
	v, err := bsonValue(value)
	if err != nil {
		return err
	}

	root := target == mongoDocField
	update := bson.M{
		"$set": bson.M{target: v},
		"$inc": bson.M{mongoRevField: 1},
	}
	res, err := s.coll.UpdateOne(s.ctx(ctx), bson.M{"_id": key}, update, options.Update().SetUpsert(root))
	if err != nil {
		return mongoError(err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoSession) Delete(ctx context.Context, key string) (int64, error) {
	res, err := s.coll.DeleteOne(s.ctx(ctx), bson.M{"_id": key})
	if err != nil {
		return 0, mongoError(err)
	}
	return res.DeletedCount, nil
}

func (s *mongoSession) Batch(key string) Batch {
	return &mongoBatch{session: s, key: key}
}

// Modify compares-and-swaps on the _rev counter.
func (s *mongoSession) Modify(ctx context.Context, key, path string, fn ModifyFunc) error {
	current, rev, err := s.load(ctx, key, path)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	v, err := bsonValue(next)
	if err != nil {
		return err
	}
	target, _ := mongoPath(path)

	filter := bson.M{"_id": key, mongoRevField: rev}
	if rev == 0 {
		filter = bson.M{"_id": key, "$or": bson.A{
			bson.M{mongoRevField: bson.M{"$exists": false}},
			bson.M{mongoRevField: 0},
		}}
	}
	update := bson.M{
		"$set": bson.M{target: v},
		"$inc": bson.M{mongoRevField: 1},
	}
	res, err := s.coll.UpdateOne(s.ctx(ctx), filter, update)
	if err != nil {
		return mongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

func (s *mongoSession) Close() error {
	if s.sess == nil {
		return nil
	}
	s.sess.EndSession(context.Background())
	s.sess = nil
	return nil
}

type mongoBatch struct {
	session *mongoSession
	key     string
	ops     []pendingSet
}

func (b *mongoBatch) Set(path string, value any) {
	b.ops = append(b.ops, pendingSet{path: path, value: value})
}

func (b *mongoBatch) Len() int { return len(b.ops) }

// Exec applies every field in one UpdateOne. MongoDB applies a single-document
// update atomically, so the outcomes are either all nil or all the same error.
func (b *mongoBatch) Exec(ctx context.Context) ([]error, error) {
	set := bson.M{}
	for _, op := range b.ops {
		target, err := mongoPath(op.path)
		if err != nil {
			return nil, err
		}
		if target == mongoDocField {
			return nil, fmt.Errorf("%w: batch cannot replace the document root", ErrInvalidPath)
		}
		v, err := bsonValue(op.value)
		if err != nil {
			return nil, err
		}
		set[target] = v
	}

	update := bson.M{"$inc": bson.M{mongoRevField: 1}}
	if len(set) > 0 {
		update["$set"] = set
	}
	res, err := b.session.coll.UpdateOne(b.session.ctx(ctx), bson.M{"_id": b.key}, update)
	if err != nil {
		mapped := mongoError(err)
		if errors.Is(mapped, ErrUnavailable) {
			return nil, mapped
		}
		return fill(len(b.ops), mapped), nil
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return make([]error, len(b.ops)), nil
}

// fill returns n copies of err.
func fill(n int, err error) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}
