package cont

import (
	"context"
	"tapearn/entity"
)

type userKey struct{}

// PutUser stores a copy of the authenticated player; handlers never share it.
func PutUser(c context.Context, user *entity.User) context.Context {
	return context.WithValue(c, userKey{}, *user)
}

// User returns the authenticated player, false outside the authenticated routes.
func User(c context.Context) (*entity.User, bool) {
	user, ok := c.Value(userKey{}).(entity.User)
	if !ok {
		return nil, false
	}
	return &user, true
}

// GetUser is User for handlers behind the authenticate middleware: a missing
// player yields an empty user, which every lookup reports as not found.
func GetUser(c context.Context) *entity.User {
	if user, ok := User(c); ok {
		return user
	}
	return &entity.User{}
}
