package mongo

import (
	"context"

	"github.com/fixkme/fastgrpc/mlog"
	"github.com/fixkme/fastgrpc/protogen"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultSchemaCollection = "proto_files"

// SchemaStore 每个proto文件一条记录, _id为文件路径
type SchemaStore struct {
	coll *mongo.Collection
}

func NewSchemaStore(db *mongo.Database, collection string) *SchemaStore {
	if collection == "" {
		collection = DefaultSchemaCollection
	}
	return &SchemaStore{coll: db.Collection(collection)}
}

// Publish 实现 protogen.Publisher, digest相同时不更新
func (s *SchemaStore) Publish(ctx context.Context, doc *protogen.Document) error {
	filter := bson.D{{Key: "_id", Value: doc.Path}, {Key: "digest", Value: bson.D{{Key: "$ne", Value: doc.Digest}}}}
	res, err := s.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// 已存在且digest相同
		return nil
	}
	if err != nil {
		return err
	}
	if res.ModifiedCount > 0 || res.UpsertedCount > 0 {
		mlog.Infof("proto %s published to mongo, digest %s", doc.Path, doc.Digest)
	}
	return nil
}

// Fetch 不存在时返回 mongo.ErrNoDocuments
func (s *SchemaStore) Fetch(ctx context.Context, path string) (*protogen.Document, error) {
	doc := &protogen.Document{}
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: path}}).Decode(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// List 按包名列出, pkg为空时列出全部
func (s *SchemaStore) List(ctx context.Context, pkg string) ([]*protogen.Document, error) {
	filter := bson.D{}
	if pkg != "" {
		filter = bson.D{{Key: "package", Value: pkg}}
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []*protogen.Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
