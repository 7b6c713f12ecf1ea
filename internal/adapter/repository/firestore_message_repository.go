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
	"speak/pkg/logger"
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messages(postID string) *firestore.CollectionRef {
	return r.client.Collection(postsCollection).Doc(postID).Collection("messages")
}

func decodeMessage(postID string) func(*firestore.DocumentSnapshot) (*entity.Message, error) {
	return func(doc *firestore.DocumentSnapshot) (*entity.Message, error) {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, err
		}
		message.ID = doc.Ref.ID
		message.PostID = postID
		return &message, nil
	}
}

func (r *firestoreMessageRepository) Create(ctx context.Context, postID string, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	data := map[string]interface{}{
		"senderId":  message.SenderID,
		"type":      string(message.Kind()),
		"createdAt": firestore.ServerTimestamp,
		"read":      false,
	}
	if message.Text != "" {
		data["text"] = message.Text
	}
	if message.FileURL != "" {
		data["fileUrl"] = message.FileURL
		data["fileName"] = message.FileName
	}
	if message.StoragePath != "" {
		data["storagePath"] = message.StoragePath
	}

	ref := r.messages(postID).Doc(message.ID)
	if _, err := ref.Create(ctx, data); err != nil {
		return storeError("Failed to create message", err)
	}

	stored, err := r.GetByID(ctx, postID, message.ID)
	if err != nil {
		return err
	}
	*message = *stored
	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, postID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(postID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, storeError("Failed to get message", err)
	}

	message, err := decodeMessage(postID)(doc)
	if err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return message, nil
}

func (r *firestoreMessageRepository) ordered(postID string) firestore.Query {
	return r.messages(postID).OrderBy("createdAt", firestore.Asc)
}

func (r *firestoreMessageRepository) List(ctx context.Context, postID string) ([]*entity.Message, error) {
	docs, err := r.ordered(postID).Documents(ctx).GetAll()
	if err != nil {
		return nil, storeError("Failed to list messages", err)
	}

	decode := decodeMessage(postID)
	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		message, err := decode(doc)
		if err != nil {
			logger.Warn("Skipping malformed message %s: %v", doc.Ref.Path, err)
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (r *firestoreMessageRepository) Watch(ctx context.Context, postID string) *repository.Stream[*entity.Message] {
	return watchFirestoreQuery(ctx, r.ordered(postID), decodeMessage(postID))
}

func (r *firestoreMessageRepository) Delete(ctx context.Context, postID, messageID string) error {
	ref := r.messages(postID).Doc(messageID)
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return storeError("Failed to delete message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) DeleteAll(ctx context.Context, postID string) ([]*entity.Message, error) {
	messages, err := r.List(ctx, postID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(messages))
	for _, m := range messages {
		job, err := bw.Delete(r.messages(postID).Doc(m.ID))
		if err != nil {
			bw.End()
			return nil, storeError("Failed to queue message delete", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return nil, storeError("Failed to delete messages", err)
		}
	}
	return messages, nil
}

// MarkRead flips unread inbound messages in transactions of at most maxTransactionWrites
// updates until none remain. Up to that size the flip is all-or-nothing.
func (r *firestoreMessageRepository) MarkRead(ctx context.Context, postID, readerID string) (int, error) {
	total := 0
	for {
		var (
			flipped int
			more    bool
		)
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			docs, err := tx.Documents(r.messages(postID).Where("read", "==", false)).GetAll()
			if err != nil {
				return err
			}

			var refs []*firestore.DocumentRef
			for _, doc := range docs {
				sender, _ := doc.DataAt("senderId")
				if sender == readerID {
					continue
				}
				refs = append(refs, doc.Ref)
			}

			refs, more = takeBatch(refs, maxTransactionWrites)
			for _, ref := range refs {
				if err := tx.Update(ref, []firestore.Update{{Path: "read", Value: true}}); err != nil {
					return err
				}
			}
			flipped = len(refs)
			return nil
		})
		if err != nil {
			if total > 0 {
				logger.Warn("Mark read stopped after %d messages in %s", total, postID)
			}
			return total, storeError("Failed to mark messages as read", err)
		}
		total += flipped
		if !more {
			return total, nil
		}
	}
}
