package telegram

import (
	"context"

	"late_report_bot/internal/domain/member"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	userContextKey  = "member_user"
	groupContextKey = "member_group"
)

// ResolveMembers registers the sender (and the group for group chats) on
// every update and attaches them to the context for the handlers.
// Senders listed in grants are promoted to their configured role.
// Updates whose sender cannot be resolved are dropped.
func ResolveMembers(ctx context.Context, members member.Repository, grants member.RoleGrants, baseLogger *logrus.Entry) telebot.MiddlewareFunc {
	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			sender := c.Sender()
			if sender == nil || sender.IsBot {
				return nil
			}
			logCtx := baseLogger.WithField("sender_id", sender.ID)

			user, err := resolveUser(ctx, members, grants, member.Profile{
				TelegramID: sender.ID,
				Username:   sender.Username,
				FirstName:  sender.FirstName,
				LastName:   sender.LastName,
			}, logCtx)
			if err != nil {
				logCtx.WithError(err).Error("Failed to resolve sender")
				return nil
			}
			c.Set(userContextKey, user)

			if chat := c.Chat(); chat != nil && isGroupChat(chat) {
				group, err := members.EnsureGroup(ctx, chat.ID, chat.Title)
				if err != nil {
					logCtx.WithError(err).WithField("chat_id", chat.ID).Error("Failed to resolve group")
					return nil
				}
				c.Set(groupContextKey, group)
			}
			return next(c)
		}
	}
}

func resolveUser(ctx context.Context, members member.Repository, grants member.RoleGrants, p member.Profile, logCtx *logrus.Entry) (*member.User, error) {
	user, err := members.EnsureUser(ctx, p)
	if err != nil {
		return nil, err
	}
	role, upgrade := grants.Upgrade(user)
	if !upgrade {
		return user, nil
	}
	promoted, err := members.SetRole(ctx, user.ID, role)
	if err != nil {
		return nil, err
	}
	logCtx.WithFields(logrus.Fields{"user_id": user.ID, "role": role}).Info("Promoted user from configured grants")
	return promoted, nil
}

func isGroupChat(chat *telebot.Chat) bool {
	return chat.Type == telebot.ChatGroup || chat.Type == telebot.ChatSuperGroup
}

func currentUser(c telebot.Context) *member.User {
	u, _ := c.Get(userContextKey).(*member.User)
	return u
}

// currentGroup is nil outside group chats.
func currentGroup(c telebot.Context) *member.Group {
	g, _ := c.Get(groupContextKey).(*member.Group)
	return g
}
