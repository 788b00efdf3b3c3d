package chatclient

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/totem-tech/chatclient-go/ss58"
)

// ============================================================================
// Account
// ============================================================================

// IDExists reports whether a user id is taken.
func (c *Client) IDExists(ctx context.Context, userID string) *Promise[bool] {
	return callInto[bool](ctx, c, EventIDExists, userID)
}

// IsUserOnline reports whether a user is connected.
func (c *Client) IsUserOnline(ctx context.Context, userID string) *Promise[bool] {
	return callInto[bool](ctx, c, EventIsUserOnline, userID)
}

// Register creates a user with a fresh secret and logs in as that user. An
// empty referredBy falls back to the stored referral code. The address is
// checked locally before anything is sent.
func (c *Client) Register(ctx context.Context, userID, address, referredBy string) *Promise[User] {
	if !ss58.Valid(address) {
		return Reject[User](&ValidationError{Event: EventRegister, Param: "address", Reason: "invalid address"})
	}
	if referredBy == "" {
		code, err := c.settings.referralCode()
		if err != nil {
			c.log.Warn("read referral code", zap.Error(err))
		}
		referredBy = code
	}
	var ref any
	if referredBy != "" {
		ref = referredBy
	}
	secret := uuid.NewString()
	return Map(c.Call(ctx, EventRegister, userID, secret, address, ref), func(json.RawMessage) (User, error) {
		return User{ID: userID, Secret: secret, Address: address}, nil
	})
}

// Login authenticates the connection and resolves with the user's roles.
func (c *Client) Login(ctx context.Context, userID, secret string) *Promise[[]string] {
	return Map(c.Call(ctx, EventLogin, userID, secret), func(raw json.RawMessage) ([]string, error) {
		return decodeRoles(raw), nil
	})
}

// User returns the stored user record, or nil.
func (c *Client) User() (*User, error) { return c.settings.user() }

// ReferralCode returns the stored referral code.
func (c *Client) ReferralCode() (string, error) { return c.settings.referralCode() }

// SetReferralCode stores, or with "" removes, the referral code used by
// Register.
func (c *Client) SetReferralCode(code string) error { return c.settings.setReferralCode(code) }

// ============================================================================
// Messaging
// ============================================================================

// Message sends a chat message to one user or a group.
func (c *Client) Message(ctx context.Context, receiverIDs []string, message string, encrypted bool) *Promise[struct{}] {
	return callInto[struct{}](ctx, c, EventMessage, receiverIDs, message, encrypted)
}

// MessageGetRecent fetches messages newer than lastMessageTS ("" for all).
func (c *Client) MessageGetRecent(ctx context.Context, lastMessageTS string) *Promise[[]ChatMessage] {
	return callInto[[]ChatMessage](ctx, c, EventMessageGetRecent, lastMessageTS)
}

// MessageGroupName renames a group conversation.
func (c *Client) MessageGroupName(ctx context.Context, receiverIDs []string, name string) *Promise[struct{}] {
	return callInto[struct{}](ctx, c, EventMessageGroupName, receiverIDs, name)
}

// OnMessage registers fn for messages pushed by the server.
func (c *Client) OnMessage(fn func(ChatMessage)) {
	c.transport.On(EventMessage, func(args []json.RawMessage) {
		var m ChatMessage
		if err := decodePositional(args, &m.Message, &m.SenderID, &m.ReceiverIDs, &m.Encrypted, &m.Timestamp, &m.ID, &m.GroupName); err != nil {
			c.log.Debug("bad message push", zap.Error(err))
			return
		}
		fn(m)
	})
}

// ============================================================================
// Notifications
// ============================================================================

// Notify sends a notification to users.
func (c *Client) Notify(ctx context.Context, toUserIDs []string, typ, childType, message string, data any) *Promise[struct{}] {
	return callInto[struct{}](ctx, c, EventNotify, toUserIDs, typ, childType, message, data)
}

// NotificationGetRecent fetches notifications newer than lastTS, keyed by id.
func (c *Client) NotificationGetRecent(ctx context.Context, lastTS string) *Promise[map[string]Notification] {
	return callInto[map[string]Notification](ctx, c, EventNotificationGetRecent, lastTS)
}

// NotificationSetStatus marks a notification read and/or deleted.
func (c *Client) NotificationSetStatus(ctx context.Context, id string, read, deleted bool) *Promise[struct{}] {
	return callInto[struct{}](ctx, c, EventNotificationSetStatus, id, read, deleted)
}

// OnNotification registers fn for notifications pushed by the server.
func (c *Client) OnNotification(fn func(Notification)) {
	c.transport.On(EventNotification, func(args []json.RawMessage) {
		var n Notification
		if err := decodePositional(args, &n.ID, &n.From, &n.Type, &n.ChildType, &n.Message, &n.Data, &n.TSCreated, &n.Read, &n.Deleted); err != nil {
			c.log.Debug("bad notification push", zap.Error(err))
			return
		}
		fn(n)
	})
}

// ============================================================================
// Companies and projects
// ============================================================================

// Company fetches the company with hash, or creates it when company is set.
func (c *Client) Company(ctx context.Context, hash string, company map[string]any) *Promise[json.RawMessage] {
	if company == nil {
		return c.Call(ctx, EventCompany, hash)
	}
	return c.Call(ctx, EventCompany, hash, company)
}

// CompanySearch searches companies, keyed by hash.
func (c *Client) CompanySearch(ctx context.Context, query string, findIdentity bool) *Promise[map[string]map[string]any] {
	return callInto[map[string]map[string]any](ctx, c, EventCompanySearch, query, findIdentity)
}

// Project fetches the project with hash, or creates or updates it when
// project is set.
func (c *Client) Project(ctx context.Context, hash string, project map[string]any, create bool) *Promise[json.RawMessage] {
	if project == nil {
		return c.Call(ctx, EventProject, hash)
	}
	return c.Call(ctx, EventProject, hash, project, create)
}

// ProjectsByHashes fetches several projects at once.
func (c *Client) ProjectsByHashes(ctx context.Context, hashes []string) *Promise[ProjectsResult] {
	return callInto[ProjectsResult](ctx, c, EventProjectsByHashes, hashes)
}

// Task fetches the task with id, or saves it when task is set.
func (c *Client) Task(ctx context.Context, id string, task map[string]any) *Promise[json.RawMessage] {
	if task == nil {
		return c.Call(ctx, EventTask, id)
	}
	return c.Call(ctx, EventTask, id, task)
}

// TaskGetByID fetches tasks keyed by id.
func (c *Client) TaskGetByID(ctx context.Context, ids []string) *Promise[map[string]map[string]any] {
	return callInto[map[string]map[string]any](ctx, c, EventTaskGetByID, ids)
}

// ============================================================================
// Reference data
// ============================================================================

// Countries fetches the country list keyed by code. hash is the hash of a
// cached copy; an up to date cache gets an empty reply.
func (c *Client) Countries(ctx context.Context, hash string) *Promise[map[string]Country] {
	return callInto[map[string]Country](ctx, c, EventCountries, hash)
}

// CurrencyConvert converts amount between two tickers.
func (c *Client) CurrencyConvert(ctx context.Context, from, to string, amount float64) *Promise[ConvertResult] {
	return callInto[ConvertResult](ctx, c, EventCurrencyConvert, from, to, amount)
}

// CurrencyList fetches supported currencies keyed by ticker.
func (c *Client) CurrencyList(ctx context.Context, hash string) *Promise[map[string]Currency] {
	return callInto[map[string]Currency](ctx, c, EventCurrencyList, hash)
}

// CurrencyPricesByDate fetches prices of tickers on date (YYYY-MM-DD).
func (c *Client) CurrencyPricesByDate(ctx context.Context, date string, tickers []string) *Promise[[]CurrencyPrice] {
	return callInto[[]CurrencyPrice](ctx, c, EventCurrencyPricesByDate, date, tickers)
}

// GLAccounts fetches general ledger accounts by number.
func (c *Client) GLAccounts(ctx context.Context, accountNumbers []string) *Promise[[]GLAccount] {
	return callInto[[]GLAccount](ctx, c, EventGLAccounts, accountNumbers)
}

// LanguageErrorMessages fetches the error message table for lang. hash is
// the hash of a cached copy.
func (c *Client) LanguageErrorMessages(ctx context.Context, lang, hash string) *Promise[[]string] {
	return callInto[[]string](ctx, c, EventLanguageErrorMessages, lang, hash)
}

// LanguageTranslations fetches the UI text table for lang.
func (c *Client) LanguageTranslations(ctx context.Context, lang, hash string) *Promise[[]string] {
	return callInto[[]string](ctx, c, EventLanguageTranslations, lang, hash)
}

// ============================================================================
// Misc
// ============================================================================

// FaucetRequest asks the faucet to fund address.
func (c *Client) FaucetRequest(ctx context.Context, address string) *Promise[json.RawMessage] {
	if !ss58.Valid(address) {
		return Reject[json.RawMessage](&ValidationError{Event: EventFaucetRequest, Param: "address", Reason: "invalid address"})
	}
	return c.Call(ctx, EventFaucetRequest, address)
}

// MaintenanceMode queries maintenance mode, or sets it when active is
// non-nil. It resolves with the server's current state.
func (c *Client) MaintenanceMode(ctx context.Context, active *bool) *Promise[bool] {
	if active == nil {
		return callInto[bool](ctx, c, EventMaintenanceMode)
	}
	return callInto[bool](ctx, c, EventMaintenanceMode, *active)
}

// NewsletterSignup subscribes to the newsletter.
func (c *Client) NewsletterSignup(ctx context.Context, values map[string]any) *Promise[struct{}] {
	return callInto[struct{}](ctx, c, EventNewsletterSignup, values)
}

// RewardsGetData fetches the logged in user's rewards.
func (c *Client) RewardsGetData(ctx context.Context) *Promise[json.RawMessage] {
	return c.Call(ctx, EventRewardsGetData)
}

// EventsMeta fetches the server's event metadata.
func (c *Client) EventsMeta(ctx context.Context) *Promise[map[string]EventMeta] {
	return Map(c.Call(ctx, EventEventsMeta), parseEventsMeta)
}
