package books

import (
	"context"
	"time"

	"github.com/adrianmcphee/contentbase"
)

// VoteDocType is the document type votes are stored under
const VoteDocType = "vote"

// VoteType is the direction of a vote
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// Vote is one user's vote on one book. A user has at most one vote per book.
type Vote struct {
	UserID string    `json:"userId"`
	BookID string    `json:"bookId"`
	Type   VoteType  `json:"type"`
	Time   time.Time `json:"time"`
}

func voteID(userID, bookID string) string {
	return userID + ":" + bookID
}

func voteTerms(v *Vote) map[string][]string {
	return map[string][]string{
		"user": {v.UserID},
		"book": {v.BookID},
		"type": {string(v.Type)},
	}
}

// Votes stores book votes. Votes are last-writer-wins: a user voting twice
// from two devices keeps whichever vote landed last.
type Votes struct {
	votes *contentbase.Collection[Vote]
	now   func() time.Time
}

// NewVotes creates a vote store over store
func NewVotes(store contentbase.DocumentStore) *Votes {
	return &Votes{
		votes: contentbase.NewCollection[Vote](store, VoteDocType).WithTerms(voteTerms),
		now:   time.Now,
	}
}

// SetVote records the vote of userID on bookID, replacing any previous one
func (v *Votes) SetVote(ctx context.Context, userID, bookID string, typ VoteType) (*Vote, error) {
	if userID == "" || bookID == "" {
		return nil, contentbase.WithContext(contentbase.ErrInvalidData, map[string]interface{}{"reason": "user and book are required"})
	}
	if typ != VoteUp && typ != VoteDown {
		return nil, contentbase.WithContext(contentbase.ErrInvalidData, map[string]interface{}{"vote": string(typ)})
	}

	e, err := v.votes.GetEntry(ctx, voteID(userID, bookID))
	if err != nil {
		return nil, err
	}
	e.Value = &Vote{UserID: userID, BookID: bookID, Type: typ, Time: v.now().UTC()}
	if err := e.Update(ctx); err != nil {
		return nil, err
	}
	return e.Value, nil
}

// GetVote returns the vote of userID on bookID, or nil
func (v *Votes) GetVote(ctx context.Context, userID, bookID string) (*Vote, error) {
	vote, err := v.votes.Get(ctx, voteID(userID, bookID))
	if contentbase.IsNotFound(err) {
		return nil, nil
	}
	return vote, err
}

// RemoveVote deletes the vote of userID on bookID. Removing a missing vote
// is not an error.
func (v *Votes) RemoveVote(ctx context.Context, userID, bookID string) error {
	_, err := v.votes.Mutate(ctx, voteID(userID, bookID), func(e *contentbase.Entry[Vote]) (bool, error) {
		if e.Value == nil {
			return false, nil
		}
		e.Value = nil
		return true, nil
	})
	return err
}

// Tally counts the votes on bookID
func (v *Votes) Tally(ctx context.Context, bookID string) (up, down int, err error) {
	entries, err := v.votes.Search(ctx, contentbase.Query{}.Where("book", bookID))
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		switch e.Value.Type {
		case VoteUp:
			up++
		case VoteDown:
			down++
		}
	}
	return up, down, nil
}
