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

	"github.com/hitoshi/clipstream/internal/model"
)

// VideosCollection は動画ドキュメントを保存するコレクション名。
const VideosCollection = "videos"

// DatabaseProvider は接続済みのMongoDBハンドルを返す。
// database.MongoConnectorが実装する。
type DatabaseProvider interface {
	Database(ctx context.Context) (*mongo.Database, error)
}

type transformationDocument struct {
	Height  int `bson:"height"`
	Width   int `bson:"width"`
	Quality int `bson:"quality,omitempty"`
}

type commentDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	UserID    string             `bson:"userId"`
	Content   string             `bson:"content"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type videoDocument struct {
	ID             primitive.ObjectID     `bson:"_id,omitempty"`
	Title          string                 `bson:"title"`
	Description    string                 `bson:"description"`
	Caption        string                 `bson:"caption,omitempty"`
	VideoURL       string                 `bson:"videoUrl"`
	ThumbnailURL   string                 `bson:"thumbnailUrl"`
	Controls       bool                   `bson:"controls"`
	Transformation transformationDocument `bson:"transformation"`
	UserID         string                 `bson:"userId"`
	Likes          []string               `bson:"likes"`
	Comments       []commentDocument      `bson:"comments"`
	CreatedAt      time.Time              `bson:"createdAt"`
	UpdatedAt      time.Time              `bson:"updatedAt"`
}

func (d *videoDocument) toModel() *model.Video {
	v := &model.Video{
		ID:           d.ID.Hex(),
		Title:        d.Title,
		Description:  d.Description,
		Caption:      d.Caption,
		VideoURL:     d.VideoURL,
		ThumbnailURL: d.ThumbnailURL,
		Controls:     d.Controls,
		Transformation: model.Transformation{
			Height:  d.Transformation.Height,
			Width:   d.Transformation.Width,
			Quality: d.Transformation.Quality,
		},
		UserID:    d.UserID,
		Likes:     append([]string{}, d.Likes...),
		Comments:  commentsToModel(d.Comments),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	return v
}

func commentsToModel(docs []commentDocument) []model.Comment {
	comments := make([]model.Comment, 0, len(docs))
	for _, c := range docs {
		comments = append(comments, model.Comment{
			ID:        c.ID.Hex(),
			UserID:    c.UserID,
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
		})
	}
	return comments
}

// MongoVideoRepo はMongoDBを使用した動画リポジトリ。
// いいねとコメントは動画ドキュメントに埋め込み、単一ドキュメント更新で変更する。
type MongoVideoRepo struct {
	provider DatabaseProvider
}

// NewMongoVideoRepo はMongoVideoRepoを生成する。
func NewMongoVideoRepo(provider DatabaseProvider) *MongoVideoRepo {
	return &MongoVideoRepo{provider: provider}
}

func (r *MongoVideoRepo) collection(ctx context.Context) (*mongo.Collection, error) {
	db, err := r.provider.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(VideosCollection), nil
}

// Create は動画を作成する。
func (r *MongoVideoRepo) Create(ctx context.Context, video *model.Video) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}

	doc := videoDocument{
		ID:           primitive.NewObjectID(),
		Title:        video.Title,
		Description:  video.Description,
		Caption:      video.Caption,
		VideoURL:     video.VideoURL,
		ThumbnailURL: video.ThumbnailURL,
		Controls:     video.Controls,
		Transformation: transformationDocument{
			Height:  video.Transformation.Height,
			Width:   video.Transformation.Width,
			Quality: video.Transformation.Quality,
		},
		UserID:    video.UserID,
		Likes:     []string{},
		Comments:  []commentDocument{},
		CreatedAt: video.CreatedAt,
		UpdatedAt: video.UpdatedAt,
	}

	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}

	video.ID = doc.ID.Hex()
	video.Likes = []string{}
	video.Comments = []model.Comment{}
	return nil
}

// FindByID は指定IDの動画を取得する。見つからない場合はnilを返す。
func (r *MongoVideoRepo) FindByID(ctx context.Context, id string) (*model.Video, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	var doc videoDocument
	err = coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find video: %w", err)
	}
	return doc.toModel(), nil
}

// List は全動画を作成順に返す。
func (r *MongoVideoRepo) List(ctx context.Context) ([]*model.Video, error) {
	return r.find(ctx, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// ListRecent は作成日時の新しい順に最大limit件の動画を返す。
func (r *MongoVideoRepo) ListRecent(ctx context.Context, limit int) ([]*model.Video, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"comments": 0})
	return r.find(ctx, opts)
}

func (r *MongoVideoRepo) find(ctx context.Context, opts *options.FindOptions) ([]*model.Video, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer cursor.Close(ctx)

	videos := make([]*model.Video, 0)
	for cursor.Next(ctx) {
		var doc videoDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode video: %w", err)
		}
		videos = append(videos, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate videos: %w", err)
	}
	return videos, nil
}

// AddLike はユーザーのいいねを追加する。$addToSetにより重複しない。
func (r *MongoVideoRepo) AddLike(ctx context.Context, videoID, userID string) (*model.Video, error) {
	// 既にいいね済みの場合は更新せず、updatedAtも変えない
	return r.updateOne(ctx, videoID, bson.M{"likes": bson.M{"$ne": userID}}, bson.M{
		"$addToSet": bson.M{"likes": userID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
}

// RemoveLike はユーザーのいいねを取り消す。
func (r *MongoVideoRepo) RemoveLike(ctx context.Context, videoID, userID string) (*model.Video, error) {
	return r.updateOne(ctx, videoID, bson.M{"likes": userID}, bson.M{
		"$pull": bson.M{"likes": userID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
}

// AddComment はコメントを追記する。
func (r *MongoVideoRepo) AddComment(ctx context.Context, videoID string, comment *model.Comment) (bool, error) {
	doc := commentDocument{
		ID:        primitive.NewObjectID(),
		UserID:    comment.UserID,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	}

	video, err := r.updateOne(ctx, videoID, nil, bson.M{
		"$push": bson.M{"comments": doc},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil || video == nil {
		return false, err
	}

	comment.ID = doc.ID.Hex()
	return true, nil
}

// ListComments は動画のコメントを投稿順に返す。
func (r *MongoVideoRepo) ListComments(ctx context.Context, videoID string) ([]model.Comment, bool, error) {
	oid, err := primitive.ObjectIDFromHex(videoID)
	if err != nil {
		return nil, false, nil
	}

	coll, err := r.collection(ctx)
	if err != nil {
		return nil, false, err
	}

	var doc videoDocument
	opts := options.FindOne().SetProjection(bson.M{"comments": 1})
	err = coll.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find comments: %w", err)
	}
	return commentsToModel(doc.Comments), true, nil
}

// updateOne は単一ドキュメントをアトミックに更新し、更新後の動画を返す。
// condに一致せず更新しなかった場合は現在の動画を返す。
func (r *MongoVideoRepo) updateOne(ctx context.Context, videoID string, cond, update bson.M) (*model.Video, error) {
	oid, err := primitive.ObjectIDFromHex(videoID)
	if err != nil {
		return nil, nil
	}

	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"_id": oid}
	for k, v := range cond {
		filter[k] = v
	}

	var doc videoDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if len(cond) > 0 {
			return r.FindByID(ctx, videoID)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update video: %w", err)
	}
	return doc.toModel(), nil
}

// compile-time interface check
var _ VideoRepository = (*MongoVideoRepo)(nil)
