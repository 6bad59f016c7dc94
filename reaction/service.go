package reaction

import (
	"context"
	"time"

	"social-realtime/apperror"
	"social-realtime/model"
)

const (
	EventPostLiked   = "post-liked"
	EventPostUnliked = "post-unliked"
	EventWinkCount   = "wink-count-update"
)

type Store interface {
	ToggleStore
	CountReactions(ctx context.Context, kind model.ReactionKind, contentID string) (int64, error)
	AddProfileWink(ctx context.Context, profileID, userID string, at time.Time) (int64, error)
}

type Directory interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipientID string, n *model.Notification) error
}

type Emitter interface {
	Broadcaster
	ToUser(userID, event string, payload any)
}

type PostLikeEvent struct {
	PostID     string `json:"postId"`
	UserID     string `json:"userId"`
	LikesCount int64  `json:"likesCount"`
}

type WinkCountEvent struct {
	ProfileID string `json:"profileId"`
	Count     int64  `json:"count"`
}

// Service handles the reactions that are written as soon as they arrive:
// post likes and profile winks.
type Service struct {
	store    Store
	users    Directory
	notifier Notifier
	emitter  Emitter
	now      func() time.Time
}

func NewService(store Store, users Directory, notifier Notifier, emitter Emitter) *Service {
	return &Service{store: store, users: users, notifier: notifier, emitter: emitter, now: time.Now}
}

func (s *Service) LikePost(ctx context.Context, postID, userID string) (int64, error) {
	return s.setPostLike(ctx, postID, userID, true)
}

func (s *Service) UnlikePost(ctx context.Context, postID, userID string) (int64, error) {
	return s.setPostLike(ctx, postID, userID, false)
}

func (s *Service) setPostLike(ctx context.Context, postID, userID string, on bool) (int64, error) {
	if postID == "" {
		return 0, apperror.ErrMissingContent
	}
	if userID == "" {
		return 0, apperror.ErrMissingUser
	}

	if _, err := s.store.SetReaction(ctx, model.PostLike, postID, userID, on); err != nil {
		return 0, apperror.Internal("failed to update like", err)
	}
	count, err := s.store.CountReactions(ctx, model.PostLike, postID)
	if err != nil {
		return 0, apperror.Internal("failed to update like", err)
	}

	event := EventPostLiked
	if !on {
		event = EventPostUnliked
	}
	s.emitter.Broadcast(event, PostLikeEvent{PostID: postID, UserID: userID, LikesCount: count})
	return count, nil
}

// WinkProfile counts a wink of userID at profileID and tells the profile
// owner about it. It returns the total winks of the profile.
func (s *Service) WinkProfile(ctx context.Context, profileID, userID string) (int64, error) {
	if profileID == "" {
		return 0, apperror.ErrMissingContent
	}
	if userID == "" {
		return 0, apperror.ErrMissingUser
	}
	if profileID == userID {
		return 0, apperror.ErrSelfWink
	}

	total, err := s.store.AddProfileWink(ctx, profileID, userID, s.now())
	if err != nil {
		return 0, apperror.Internal("failed to wink", err)
	}

	name := "Someone"
	if sender, err := s.users.UserByID(ctx, userID); err == nil {
		name = sender.DisplayName()
	}
	err = s.notifier.Notify(ctx, profileID, &model.Notification{
		RecipientID: profileID,
		SenderID:    userID,
		Type:        model.NotificationProfileWink,
		Title:       "New wink",
		Body:        name + " winked at you",
		Link:        "/profile/" + userID,
	})
	if err != nil {
		batcherLog.Error("wink notification for %s failed: %v", profileID, err)
	}

	s.emitter.ToUser(profileID, EventWinkCount, WinkCountEvent{ProfileID: profileID, Count: total})
	return total, nil
}
