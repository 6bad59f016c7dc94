package apperror

var (
	// Client-visible errors of the real-time core
	ErrMissingSender     = InvalidArg("senderId is required")
	ErrMissingReceiver   = InvalidArg("receiverId is required")
	ErrEmptyContent      = InvalidArg("message content cannot be empty")
	ErrInvalidType       = InvalidArg("type must be one of text, image, audio, video, file")
	ErrSelfMessage       = InvalidArg("cannot send a message to yourself")
	ErrMissingChat       = InvalidArg("chatId is required")
	ErrMissingUser       = InvalidArg("userId is required")
	ErrMissingContent    = InvalidArg("content id is required")
	ErrChatNotFound      = NotFound("chat not found")
	ErrNotMember         = Forbidden("you are not a member of this chat")
	ErrNotFriends        = Forbidden("you can only message users who accepted your friend request")
	ErrDailyLimit        = Exhausted("daily message limit reached, upgrade your plan to keep chatting")
	ErrIdentityMismatch  = Unauthorized("token does not belong to this user")
	ErrNotJoined         = Unauthorized("join-user must be sent first")
	ErrInvalidSignalPeer = InvalidArg("call target is not a member of this chat")
	ErrInvalidReaction   = InvalidArg("reaction kind is not supported here")
	ErrSelfWink          = InvalidArg("cannot wink at your own profile")
)
