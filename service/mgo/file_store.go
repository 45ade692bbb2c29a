package mgo

import (
	"bytes"
	"context"
	"time"

	"PPSignal/tools/errs"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const uploadBucket = "uploads"

// FileInfo describes a stored upload.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"file_name"`
	Size       int64     `json:"size"`
	UploadedBy string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// FileStore keeps assembled uploads.
type FileStore interface {
	Put(ctx context.Context, name, userID string, data []byte) (FileInfo, error)
	// Get returns errs.ErrRecordNotFound for unknown ids.
	Get(ctx context.Context, id string) (FileInfo, []byte, error)
}

// GridFSStore stores uploads in the "uploads" GridFS bucket.
type GridFSStore struct {
	db *mongo.Database
}

func NewGridFSStore(db *mongo.Database) *GridFSStore { return &GridFSStore{db: db} }

func (s *GridFSStore) bucket() (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(uploadBucket))
	return b, errs.Wrap(err)
}

func (s *GridFSStore) Put(ctx context.Context, name, userID string, data []byte) (FileInfo, error) {
	b, err := s.bucket()
	if err != nil {
		return FileInfo{}, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = b.SetWriteDeadline(dl)
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{"user_id": userID})
	oid, err := b.UploadFromStream(name, bytes.NewReader(data), opts)
	if err != nil {
		return FileInfo{}, errs.WrapMsg(err, "gridfs upload", "file", name)
	}
	return FileInfo{
		ID:         oid.Hex(),
		Name:       name,
		Size:       int64(len(data)),
		UploadedBy: userID,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

type gridFile struct {
	ID         primitive.ObjectID `bson:"_id"`
	Name       string             `bson:"filename"`
	Length     int64              `bson:"length"`
	UploadDate time.Time          `bson:"uploadDate"`
	Metadata   struct {
		UserID string `bson:"user_id"`
	} `bson:"metadata"`
}

func (s *GridFSStore) Get(ctx context.Context, id string) (FileInfo, []byte, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return FileInfo{}, nil, errs.ErrRecordNotFound.WrapMsg("bad file id", "id", id)
	}
	b, err := s.bucket()
	if err != nil {
		return FileInfo{}, nil, err
	}
	cur, err := b.Find(bson.M{"_id": oid})
	if err != nil {
		return FileInfo{}, nil, errs.WrapMsg(err, "gridfs find", "id", id)
	}
	var files []gridFile
	if err := cur.All(ctx, &files); err != nil {
		return FileInfo{}, nil, errs.WrapMsg(err, "gridfs decode", "id", id)
	}
	if len(files) == 0 {
		return FileInfo{}, nil, errs.ErrRecordNotFound.WrapMsg("file not found", "id", id)
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = b.SetReadDeadline(dl)
	}
	var buf bytes.Buffer
	if _, err := b.DownloadToStream(oid, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return FileInfo{}, nil, errs.ErrRecordNotFound.WrapMsg("file not found", "id", id)
		}
		return FileInfo{}, nil, errs.WrapMsg(err, "gridfs download", "id", id)
	}
	f := files[0]
	return FileInfo{
		ID:         id,
		Name:       f.Name,
		Size:       f.Length,
		UploadedBy: f.Metadata.UserID,
		CreatedAt:  f.UploadDate,
	}, buf.Bytes(), nil
}
