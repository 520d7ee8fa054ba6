package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/haggle/internal/models"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsRetryable decides whether a failed Operation should be attempted again.
type IsRetryable func(err error) bool

const DefaultMaxRetries = 3

// Try runs op, retrying on duplicate key errors with DefaultMaxRetries.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoDuplicateKeyError)
}

// WithRetries runs op once plus up to maxRetries more times while retryable(err) holds.
func WithRetries(op Operation, maxRetries int, retryable IsRetryable) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !retryable(err) {
			break
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// InsertOne inserts doc, generating a fresh SixID whenever the previous one collided.
// Duplicates on any other unique index are returned to the caller untouched.
func InsertOne(ctx context.Context, coll *mongo.Collection, doc models.IBase) error {
	doc.GenIDIfEmpty()
	return WithRetries(func() error {
		_, err := coll.InsertOne(ctx, doc)
		if IsMongoDuplicateIDError(err) {
			doc.GenID()
		}
		return err
	}, DefaultMaxRetries, IsMongoDuplicateIDError)
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	return duplicateKeyMessage(err, "") != ""
}

// IsMongoDuplicateIDError reports a duplicate key error on the _id index.
func IsMongoDuplicateIDError(err error) bool {
	return duplicateKeyMessage(err, "_id_") != ""
}

// duplicateKeyMessage returns the message of the first 11000 write error whose message contains index.
func duplicateKeyMessage(err error, index string) string {
	if err == nil {
		return ""
	}
	var writeErrors []mongo.WriteError
	var we mongo.WriteException
	if errors.As(err, &we) {
		writeErrors = append(writeErrors, we.WriteErrors...)
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			writeErrors = append(writeErrors, e.WriteError)
		}
	}
	for _, e := range writeErrors {
		if e.Code == 11000 && strings.Contains(e.Message, index) {
			if e.Message == "" {
				return "E11000"
			}
			return e.Message
		}
	}
	return ""
}
