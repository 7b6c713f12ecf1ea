package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speak/internal/domain/repository"
	"speak/pkg/errors"
	"speak/pkg/logger"
)

// maxTransactionWrites is Firestore's cap on writes in one transaction or batch.
const maxTransactionWrites = 500

// takeBatch returns the first limit items and whether any were left out.
func takeBatch[T any](items []T, limit int) ([]T, bool) {
	if len(items) <= limit {
		return items, false
	}
	return items[:limit], true
}

// storeError maps a Firestore/gRPC failure onto the application error taxonomy.
// AppErrors raised inside transaction callbacks pass through untouched.
func storeError(message string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*errors.AppError); ok {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return errors.NotFound(message, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return errors.Forbidden(message, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return errors.Network(message, err)
	case codes.AlreadyExists:
		return errors.Conflict(message)
	case codes.FailedPrecondition, codes.Aborted:
		return errors.InvalidState(message)
	}
	return errors.Internal(message, err)
}

// watchFirestoreQuery adapts a Firestore real-time listener to a Stream. decode turns
// one document into an item; documents that fail to decode are skipped and logged.
func watchFirestoreQuery[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error)) *repository.Stream[T] {
	return repository.NewStream(ctx, func(ctx context.Context, emit func([]T)) error {
		it := q.Snapshots(ctx)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return nil
				}
				return storeError("Live query failed", err)
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				return storeError("Failed to read snapshot", err)
			}

			items := make([]T, 0, len(docs))
			for _, doc := range docs {
				item, err := decode(doc)
				if err != nil {
					logger.Warn("Skipping malformed document %s: %v", doc.Ref.Path, err)
					continue
				}
				items = append(items, item)
			}
			emit(items)
		}
	})
}
