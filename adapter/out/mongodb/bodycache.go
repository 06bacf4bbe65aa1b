// Package mongodb implements the message body cache over MongoDB,
// grounded on worker_email_body_adapter.go's TTL-indexed, gzip-compressed
// document store, narrowed from the teacher's (emailId, connectionId)
// shape down to the spec's messageId-keyed BodyCache port.
package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionMessageBodies = "message_bodies"

	// compressionThreshold mirrors the teacher's: bodies smaller than
	// this are stored as-is, the gzip framing isn't worth it.
	compressionThreshold = 1024

	// bodyCacheTTL is how long a body survives without being re-fetched;
	// the mirror store's metadata row outlives this, the cache does not.
	bodyCacheTTL = 90 * 24 * time.Hour
)

// BodyCache implements out.BodyCache over a Mongo collection with a TTL
// index, so expired entries disappear automatically instead of needing
// an explicit eviction job.
type BodyCache struct {
	collection *mongo.Collection
}

func NewBodyCache(db *mongo.Database) *BodyCache {
	return &BodyCache{collection: db.Collection(collectionMessageBodies)}
}

// EnsureIndexes creates the unique message-id index and the TTL index on
// expiresAt; call once at startup.
func (c *BodyCache) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, err := c.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type bodyDocument struct {
	MessageID    string    `bson:"message_id"`
	Body         []byte    `bson:"body"`
	HTMLBody     []byte    `bson:"html_body"`
	IsCompressed bool      `bson:"is_compressed"`
	CachedAt     time.Time `bson:"cached_at"`
	ExpiresAt    time.Time `bson:"expires_at"`
}

func (c *BodyCache) Put(ctx context.Context, messageID, body, htmlBody string) error {
	bodyBytes := []byte(body)
	htmlBytes := []byte(htmlBody)
	compressed := false

	if len(bodyBytes)+len(htmlBytes) > compressionThreshold {
		gzBody, err := compress(bodyBytes)
		if err != nil {
			return fmt.Errorf("compress body: %w", err)
		}
		gzHTML, err := compress(htmlBytes)
		if err != nil {
			return fmt.Errorf("compress html body: %w", err)
		}
		bodyBytes, htmlBytes, compressed = gzBody, gzHTML, true
	}

	now := time.Now()
	doc := bodyDocument{
		MessageID:    messageID,
		Body:         bodyBytes,
		HTMLBody:     htmlBytes,
		IsCompressed: compressed,
		CachedAt:     now,
		ExpiresAt:    now.Add(bodyCacheTTL),
	}

	opts := options.Replace().SetUpsert(true)
	_, err := c.collection.ReplaceOne(ctx, bson.M{"message_id": messageID}, doc, opts)
	if err != nil {
		return fmt.Errorf("save message body: %w", err)
	}
	return nil
}

func (c *BodyCache) Get(ctx context.Context, messageID string) (string, string, error) {
	var doc bodyDocument
	err := c.collection.FindOne(ctx, bson.M{"message_id": messageID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", "", nil
		}
		return "", "", fmt.Errorf("get message body: %w", err)
	}

	bodyBytes, htmlBytes := doc.Body, doc.HTMLBody
	if doc.IsCompressed {
		if bodyBytes, err = decompress(bodyBytes); err != nil {
			return "", "", fmt.Errorf("decompress body: %w", err)
		}
		if htmlBytes, err = decompress(htmlBytes); err != nil {
			return "", "", fmt.Errorf("decompress html body: %w", err)
		}
	}
	return string(bodyBytes), string(htmlBytes), nil
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
