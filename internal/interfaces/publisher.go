package interfaces

import "context"

// Bookmark is the request shape for a remote create call.
type Bookmark struct {
	URL      string
	Title    string
	HTML     string
	Tags     []string
	FolderID string
}

// BookmarkRef identifies a created bookmark on the remote service.
type BookmarkRef struct {
	RemoteID string
	Location string
}

// BookmarkService is the remote bookmarking boundary. Both calls may be slow
// and rate limited; implementations enforce a minimum inter-call spacing.
type BookmarkService interface {
	Create(ctx context.Context, credentialID string, bookmark Bookmark) (*BookmarkRef, error)
	Delete(ctx context.Context, credentialID, remoteID string) error
}
