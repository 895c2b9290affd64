package consts

const (
	UserFollowerKey   = "user:follower:"
	UserFollowingKey  = "user:following:"
	PresenceKey       = "im:presence:"
	PresenceConnKey   = "im:presence:conn:"
	TokenBlacklistKey = "auth:blacklist:"
)

const (
	CallTimeoutLock = "lock:call:timeout"
)
