package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/pkg/errors"
)

const (
	postsCollection       = "posts"
	engagementsCollection = "engagements"
)

type firestorePostRepository struct {
	client *firestore.Client
}

func NewFirestorePostRepository(client *firestore.Client) repository.PostRepository {
	return &firestorePostRepository{
		client: client,
	}
}

func (r *firestorePostRepository) posts() *firestore.CollectionRef {
	return r.client.Collection(postsCollection)
}

func decodePost(doc *firestore.DocumentSnapshot) (*entity.Post, error) {
	var post entity.Post
	if err := doc.DataTo(&post); err != nil {
		return nil, err
	}
	post.ID = doc.Ref.ID
	return &post, nil
}

func (r *firestorePostRepository) Create(ctx context.Context, post *entity.Post) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}

	ref := r.posts().Doc(post.ID)
	_, err := ref.Create(ctx, map[string]interface{}{
		"userId":     post.UserID,
		"userEmail":  post.UserEmail,
		"category":   post.Category,
		"icon":       post.Icon,
		"content":    post.Content,
		"status":     string(entity.PostStatusPending),
		"acceptedBy": nil,
		"archived":   false,
		"createdAt":  firestore.ServerTimestamp,
		"updatedAt":  firestore.ServerTimestamp,
	})
	if err != nil {
		return storeError("Failed to create post", err)
	}

	// read back so the caller sees the resolved server timestamps
	stored, err := r.GetByID(ctx, post.ID)
	if err != nil {
		return err
	}
	*post = *stored
	return nil
}

func (r *firestorePostRepository) GetByID(ctx context.Context, id string) (*entity.Post, error) {
	doc, err := r.posts().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Post", err)
		}
		return nil, storeError("Failed to get post", err)
	}

	post, err := decodePost(doc)
	if err != nil {
		return nil, errors.Internal("Failed to parse post data", err)
	}
	return post, nil
}

func (r *firestorePostRepository) buildQuery(q repository.PostQuery) firestore.Query {
	query := r.posts().Query
	if q.UserID != "" {
		query = query.Where("userId", "==", q.UserID)
	}
	if q.Status != "" {
		query = query.Where("status", "==", string(q.Status))
	}
	if q.AcceptedBy != "" {
		query = query.Where("acceptedBy", "==", q.AcceptedBy)
	}
	if q.Archived != nil {
		query = query.Where("archived", "==", *q.Archived)
	}

	dir := firestore.Desc
	if q.Ascending {
		dir = firestore.Asc
	}
	return query.OrderBy("createdAt", dir)
}

func (r *firestorePostRepository) List(ctx context.Context, q repository.PostQuery) ([]*entity.Post, error) {
	docs, err := r.buildQuery(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, storeError("Failed to list posts", err)
	}

	posts := make([]*entity.Post, 0, len(docs))
	for _, doc := range docs {
		post, err := decodePost(doc)
		if err != nil {
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (r *firestorePostRepository) Watch(ctx context.Context, q repository.PostQuery) *repository.Stream[*entity.Post] {
	return watchFirestoreQuery(ctx, r.buildQuery(q), decodePost)
}

// pendingTx reads the post inside tx and fails unless it is still pending.
func pendingTx(tx *firestore.Transaction, ref *firestore.DocumentRef, reason string) (*entity.Post, error) {
	doc, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Post", err)
		}
		return nil, err
	}
	post, err := decodePost(doc)
	if err != nil {
		return nil, errors.Internal("Failed to parse post data", err)
	}
	if post.Status != entity.PostStatusPending {
		return nil, errors.InvalidState(reason)
	}
	return post, nil
}

func (r *firestorePostRepository) UpdateIfPending(ctx context.Context, id string, update entity.PostUpdate) (*entity.Post, error) {
	ref := r.posts().Doc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := pendingTx(tx, ref, "Only pending requests can be edited"); err != nil {
			return err
		}

		updates := []firestore.Update{{Path: "updatedAt", Value: firestore.ServerTimestamp}}
		if update.Category != nil {
			updates = append(updates,
				firestore.Update{Path: "category", Value: *update.Category},
				firestore.Update{Path: "icon", Value: entity.CategoryIcon(*update.Category)},
			)
		}
		if update.Content != nil {
			updates = append(updates, firestore.Update{Path: "content", Value: *update.Content})
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		return nil, storeError("Failed to update post", err)
	}
	return r.GetByID(ctx, id)
}

func (r *firestorePostRepository) DeleteIfPending(ctx context.Context, id string) (*entity.Post, error) {
	ref := r.posts().Doc(id)
	var deleted *entity.Post
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		post, err := pendingTx(tx, ref, "Only pending requests can be deleted")
		if err != nil {
			return err
		}
		deleted = post
		return tx.Delete(ref)
	})
	if err != nil {
		return nil, storeError("Failed to delete post", err)
	}
	return deleted, nil
}

// Accept takes engagements/{counselorId} together with the status change. The lock read
// makes two concurrent accepts by one counselor conflict on commit; the legacy query
// covers engagements that predate the lock document.
func (r *firestorePostRepository) Accept(ctx context.Context, id, counselorID string) (*entity.Post, error) {
	ref := r.posts().Doc(id)
	lockRef := r.client.Collection(engagementsCollection).Doc(counselorID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := pendingTx(tx, ref, "Request is no longer pending"); err != nil {
			return err
		}

		lock, err := tx.Get(lockRef)
		switch {
		case err == nil:
			if held, _ := lock.DataAt("postId"); held != nil && held != "" {
				return errors.Conflict("active engagement exists")
			}
		case status.Code(err) != codes.NotFound:
			return err
		}

		legacy, err := tx.Documents(r.posts().
			Where("acceptedBy", "==", counselorID).
			Where("status", "==", string(entity.PostStatusAccepted)).
			Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(legacy) > 0 {
			return errors.Conflict("active engagement exists")
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(entity.PostStatusAccepted)},
			{Path: "acceptedBy", Value: counselorID},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}); err != nil {
			return err
		}
		return tx.Set(lockRef, map[string]interface{}{
			"postId":     id,
			"acquiredAt": firestore.ServerTimestamp,
		})
	})
	if err != nil {
		return nil, storeError("Failed to accept post", err)
	}
	return r.GetByID(ctx, id)
}

func (r *firestorePostRepository) Complete(ctx context.Context, id string) (*entity.Post, error) {
	ref := r.posts().Doc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Post", err)
			}
			return err
		}
		post, err := decodePost(doc)
		if err != nil {
			return errors.Internal("Failed to parse post data", err)
		}
		if post.Status != entity.PostStatusAccepted {
			return errors.InvalidState("Only accepted requests can be completed")
		}

		lockRef := r.client.Collection(engagementsCollection).Doc(post.AcceptedByID())
		lock, err := tx.Get(lockRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(entity.PostStatusCompleted)},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}); err != nil {
			return err
		}
		if lock != nil && lock.Exists() {
			if held, _ := lock.DataAt("postId"); held == id {
				return tx.Delete(lockRef)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError("Failed to complete post", err)
	}
	return r.GetByID(ctx, id)
}

func (r *firestorePostRepository) SetArchived(ctx context.Context, id string, archived bool) (*entity.Post, error) {
	_, err := r.posts().Doc(id).Update(ctx, []firestore.Update{
		{Path: "archived", Value: archived},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Post", err)
		}
		return nil, storeError("Failed to archive post", err)
	}
	return r.GetByID(ctx, id)
}

func (r *firestorePostRepository) TouchLastMessage(ctx context.Context, id string) error {
	_, err := r.posts().Doc(id).Update(ctx, []firestore.Update{
		{Path: "lastMessageAt", Value: firestore.ServerTimestamp},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Post", err)
		}
		return storeError("Failed to update post", err)
	}
	return nil
}

func (r *firestorePostRepository) engagementQuery(counselorID string) firestore.Query {
	return r.buildQuery(repository.PostQuery{
		AcceptedBy: counselorID,
		Status:     entity.PostStatusAccepted,
	})
}

func (r *firestorePostRepository) ActiveEngagement(ctx context.Context, counselorID string) (*entity.Post, error) {
	docs, err := r.engagementQuery(counselorID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, storeError("Failed to load engagement", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	post, err := decodePost(docs[0])
	if err != nil {
		return nil, errors.Internal("Failed to parse post data", err)
	}
	return post, nil
}

func (r *firestorePostRepository) WatchEngagement(ctx context.Context, counselorID string) *repository.Stream[*entity.Post] {
	return watchFirestoreQuery(ctx, r.engagementQuery(counselorID), decodePost)
}
