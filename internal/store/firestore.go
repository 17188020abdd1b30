package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore maps collections and documents one-to-one onto Firestore.
// Firestore has no empty collections: a collection exists once it holds a document.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects with the service account key at credentialsPath. An empty
// projectID is detected from the credentials.
func NewFirestoreStore(ctx context.Context, projectID, credentialsPath string) (*FirestoreStore, error) {
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (f *FirestoreStore) Name() string { return "firestore" }

func (f *FirestoreStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	it := f.client.Collection(name).Limit(1).Documents(ctx)
	defer it.Stop()
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, opErr("collection exists", name, "", err)
	}
	return true, nil
}

// CreateCollection is a no-op; the first CreateDocument materializes the collection.
func (f *FirestoreStore) CreateCollection(_ context.Context, _ string) error { return nil }

func (f *FirestoreStore) QueryLatest(ctx context.Context, name, orderField string) (*Document, error) {
	it := f.client.Collection(name).OrderBy(orderField, firestore.Desc).Limit(1).Documents(ctx)
	defer it.Stop()
	snap, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, opErr("query latest", name, "", err)
	}
	return snapshotDocument(name, snap), nil
}

func (f *FirestoreStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, opErr("get", collection, id, err)
	}
	return snapshotDocument(collection, snap), nil
}

func (f *FirestoreStore) CreateDocument(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := f.client.Collection(collection).Doc(id).Create(ctx, fields)
	if status.Code(err) == codes.AlreadyExists {
		return opErr("create", collection, id, ErrExists)
	}
	return opErr("create", collection, id, err)
}

func (f *FirestoreStore) UpdateDocument(ctx context.Context, ref DocumentRef, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err := f.client.Collection(ref.Collection).Doc(ref.ID).Update(ctx, updates)
	return opErr("update", ref.Collection, ref.ID, err)
}

func (f *FirestoreStore) ListDocuments(ctx context.Context, collection string) ([]Document, error) {
	snaps, err := f.client.Collection(collection).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, opErr("list", collection, "", err)
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, *snapshotDocument(collection, snap))
	}
	return docs, nil
}

func (f *FirestoreStore) Close() error {
	return f.client.Close()
}

func snapshotDocument(collection string, snap *firestore.DocumentSnapshot) *Document {
	return &Document{
		Ref:    DocumentRef{Collection: collection, ID: snap.Ref.ID},
		Fields: snap.Data(),
	}
}
