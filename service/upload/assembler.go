package upload

import (
	"context"
	"encoding/base64"
	"math"
	"strings"
	"sync"
	"time"

	"PPSignal/logger"
	"PPSignal/service/mgo"
	"PPSignal/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTTL        = 10 * time.Minute
	defaultMaxChunks  = 4096
	defaultMaxPending = 1024
	defaultMaxBytes   = 64 << 20 // base64 text buffered per upload
)

// Chunk is one base64 slice of an upload.
type Chunk struct {
	UploadID    string `json:"upload_id"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Data        string `json:"data"`
	FileName    string `json:"file_name"`
	UserID      string `json:"user_id"`
}

// Progress reports the state of an upload after a chunk was accepted.
// File is set once the upload is complete and stored.
type Progress struct {
	UploadID string        `json:"upload_id"`
	Complete bool          `json:"complete"`
	Received int           `json:"received"`
	Total    int           `json:"total"`
	Percent  float64       `json:"progress"`
	File     *mgo.FileInfo `json:"file,omitempty"`
}

type pending struct {
	chunks   map[int]string
	total    int
	fileName string
	userID   string
	size     int
	created  time.Time
}

type Option func(*Assembler)

func WithTTL(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.ttl = d
		}
	}
}

// WithMaxPending caps the number of incomplete uploads held at once.
func WithMaxPending(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxPending = n
		}
	}
}

// WithMaxBytes caps the base64 data buffered for a single upload.
func WithMaxBytes(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// Assembler collects chunks per upload id and hands the decoded file to
// the FileStore when the last missing index arrives.
type Assembler struct {
	mu      sync.Mutex
	pending map[string]*pending

	store      mgo.FileStore
	ttl        time.Duration
	maxChunks  int
	maxPending int
	maxBytes   int
	now        func() time.Time
}

func NewAssembler(store mgo.FileStore, opts ...Option) *Assembler {
	a := &Assembler{
		pending:    make(map[string]*pending),
		store:      store,
		ttl:        defaultTTL,
		maxChunks:  defaultMaxChunks,
		maxPending: defaultMaxPending,
		maxBytes:   defaultMaxBytes,
		now:        time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Assembler) validate(c *Chunk) error {
	c.UploadID = strings.TrimSpace(c.UploadID)
	if c.TotalChunks <= 0 || c.TotalChunks > a.maxChunks {
		return errs.ErrArgs.WrapMsg("total_chunks out of range", "total_chunks", c.TotalChunks)
	}
	if c.ChunkIndex < 0 || c.ChunkIndex >= c.TotalChunks {
		return errs.ErrArgs.WrapMsg("chunk_index out of range", "chunk_index", c.ChunkIndex, "total_chunks", c.TotalChunks)
	}
	if c.UploadID == "" {
		// 单块上传可以不带 id
		if c.TotalChunks != 1 {
			return errs.ErrArgs.WrapMsg("upload_id is required")
		}
		c.UploadID = uuid.NewString()
	}
	if strings.TrimSpace(c.FileName) == "" {
		return errs.ErrArgs.WrapMsg("file_name is required", "upload_id", c.UploadID)
	}
	return nil
}

// Add stores one chunk. A repeated index overwrites the earlier data. An
// upload that grows past the byte limit is dropped.
// When the upload completes the pending entry is removed before the file
// is decoded, so a decode or store failure drops the upload.
func (a *Assembler) Add(ctx context.Context, c Chunk) (Progress, error) {
	if err := a.validate(&c); err != nil {
		return Progress{}, err
	}

	a.mu.Lock()
	p, ok := a.pending[c.UploadID]
	if !ok {
		if c.TotalChunks > 1 && len(a.pending) >= a.maxPending {
			a.mu.Unlock()
			return Progress{}, errs.ErrUnavailable.WrapMsg("too many pending uploads", "limit", a.maxPending)
		}
		p = &pending{
			chunks:   make(map[int]string, c.TotalChunks),
			total:    c.TotalChunks,
			fileName: c.FileName,
			userID:   c.UserID,
			created:  a.now(),
		}
		a.pending[c.UploadID] = p
	} else if p.total != c.TotalChunks {
		a.mu.Unlock()
		return Progress{}, errs.ErrArgs.WrapMsg("total_chunks changed during upload",
			"upload_id", c.UploadID, "was", p.total, "now", c.TotalChunks)
	}
	size := p.size - len(p.chunks[c.ChunkIndex]) + len(c.Data)
	if size > a.maxBytes {
		delete(a.pending, c.UploadID)
		a.mu.Unlock()
		return Progress{}, errs.ErrArgs.WrapMsg("upload too large", "upload_id", c.UploadID, "limit", a.maxBytes)
	}
	p.size = size
	p.chunks[c.ChunkIndex] = c.Data
	received := len(p.chunks)
	complete := received == p.total
	if complete {
		delete(a.pending, c.UploadID)
	}
	a.mu.Unlock()

	prog := Progress{
		UploadID: c.UploadID,
		Received: received,
		Total:    p.total,
		Percent:  math.Round(float64(received)/float64(p.total)*1000) / 10,
	}
	logger.Debug("chunk received", zap.String("upload", c.UploadID), zap.Int("index", c.ChunkIndex), zap.Int("received", received), zap.Int("total", p.total))
	if !complete {
		return prog, nil
	}

	data, err := assemble(p)
	if err != nil {
		return Progress{}, errs.ErrArgs.WrapMsg("invalid base64 data", "upload_id", c.UploadID, "err", err.Error())
	}
	info, err := a.store.Put(ctx, p.fileName, p.userID, data)
	if err != nil {
		return Progress{}, errs.WrapMsg(err, "store upload", "upload_id", c.UploadID)
	}
	logger.Info("upload assembled", zap.String("upload", c.UploadID), zap.String("file", info.ID), zap.Int("bytes", len(data)))
	prog.Complete = true
	prog.File = &info
	return prog, nil
}

// chunks are joined before decoding, so slice boundaries need not align
// with base64 quanta.
func assemble(p *pending) ([]byte, error) {
	var sb strings.Builder
	for i := 0; i < p.total; i++ {
		sb.WriteString(strings.TrimSpace(p.chunks[i]))
	}
	return base64.StdEncoding.DecodeString(sb.String())
}

// Pending is the number of incomplete uploads.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Expire drops uploads older than the TTL and returns their ids.
func (a *Assembler) Expire(now time.Time) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var dropped []string
	for id, p := range a.pending {
		if now.Sub(p.created) > a.ttl {
			delete(a.pending, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// Run expires stale uploads every interval until ctx is done.
func (a *Assembler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ids := a.Expire(a.now()); len(ids) > 0 {
				logger.Info("expired incomplete uploads", zap.Strings("uploads", ids))
			}
		}
	}
}
