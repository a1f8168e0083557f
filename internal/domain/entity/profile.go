package entity

// BookSummary is what the listing collaborator exposes for room context display.
type BookSummary struct {
	ID           string `json:"id" firestore:"-"`
	Title        string `json:"title" firestore:"title"`
	ThumbnailURL string `json:"thumbnail_url,omitempty" firestore:"thumbnailUrl,omitempty"`
}

func (b *BookSummary) SubjectRef() *SubjectRef {
	if b == nil {
		return nil
	}
	return &SubjectRef{ID: b.ID, Title: b.Title, ThumbnailURL: b.ThumbnailURL}
}

// UserProfile is the subset of the user record the messaging core reads.
type UserProfile struct {
	ID       string `json:"id" firestore:"-"`
	Username string `json:"username" firestore:"username"`
	FullName string `json:"full_name,omitempty" firestore:"fullName,omitempty"`
}

// DisplayName prefers the username and falls back to the full name, then the id.
func (p *UserProfile) DisplayName() string {
	switch {
	case p.Username != "":
		return p.Username
	case p.FullName != "":
		return p.FullName
	}
	return p.ID
}
