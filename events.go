package chatclient

import (
	"encoding/json"
	"fmt"
)

// Event names understood by the chat server.
const (
	EventIDExists              = "id-exists"
	EventIsUserOnline          = "is-user-online"
	EventRegister              = "register"
	EventLogin                 = "login"
	EventMessage               = "message"
	EventMessageGetRecent      = "message-get-recent"
	EventMessageGroupName      = "message-group-name"
	EventNotify                = "notify"
	EventNotification          = "notification"
	EventNotificationGetRecent = "notification-get-recent"
	EventNotificationSetStatus = "notification-set-status"
	EventCompany               = "company"
	EventCompanySearch         = "company-search"
	EventCountries             = "countries"
	EventCurrencyConvert       = "currency-convert"
	EventCurrencyList          = "currency-list"
	EventCurrencyPricesByDate  = "currency-prices-by-date"
	EventFaucetRequest         = "faucet-request"
	EventGLAccounts            = "gl-accounts"
	EventLanguageErrorMessages = "language-error-messages"
	EventLanguageTranslations  = "language-translations"
	EventMaintenanceMode       = "maintenance-mode"
	EventNewsletterSignup      = "newsletter-signup"
	EventProject               = "project"
	EventProjectsByHashes      = "projects-by-hashes"
	EventTask                  = "task"
	EventTaskGetByID           = "task-get-by-id"
	EventRewardsGetData        = "rewards-get-data"
	EventEventsMeta            = "events-meta"
)

// eventTable is the static part of every known event's treatment. Result
// reshapers for pair-list replies live here; side effects are bound by the
// client.
var eventTable = map[string]eventSpec{
	EventIDExists:              {noLogin: true},
	EventIsUserOnline:          {},
	EventRegister:              {noLogin: true},
	EventLogin:                 {noLogin: true, maintenanceExempt: true},
	EventMessage:               {},
	EventMessageGetRecent:      {},
	EventMessageGroupName:      {},
	EventNotify:                {},
	EventNotificationGetRecent: {reshape: pairsToObject},
	EventNotificationSetStatus: {},
	EventCompany:               {},
	EventCompanySearch:         {reshape: pairsToObject},
	EventCountries:             {noLogin: true, reshape: pairsToObject},
	EventCurrencyConvert:       {},
	EventCurrencyList:          {noLogin: true, reshape: pairsToObject},
	EventCurrencyPricesByDate:  {},
	EventFaucetRequest:         {},
	EventGLAccounts:            {},
	EventLanguageErrorMessages: {noLogin: true, maintenanceExempt: true},
	EventLanguageTranslations:  {noLogin: true, maintenanceExempt: true},
	EventMaintenanceMode:       {noLogin: true, maintenanceExempt: true},
	EventNewsletterSignup:      {noLogin: true},
	EventProject:               {},
	EventProjectsByHashes:      {reshape: reshapeFirstAsObject},
	EventTask:                  {},
	EventTaskGetByID:           {reshape: pairsToObject},
	EventRewardsGetData:        {},
	EventEventsMeta:            {noLogin: true, maintenanceExempt: true, skipMeta: true},
}

// ============================================================================
// Payloads
// ============================================================================

// ChatMessage is a message pushed by the server or returned by
// MessageGetRecent.
type ChatMessage struct {
	ID          string   `json:"id,omitempty"`
	Message     string   `json:"message"`
	SenderID    string   `json:"senderId"`
	ReceiverIDs []string `json:"receiverIds"`
	Encrypted   bool     `json:"encrypted"`
	Timestamp   string   `json:"timestamp"`
	GroupName   string   `json:"groupName,omitempty"`
}

// Notification is a notification pushed by the server or returned by
// NotificationGetRecent.
type Notification struct {
	ID        string          `json:"id,omitempty"`
	From      string          `json:"from"`
	To        []string        `json:"to,omitempty"`
	Type      string          `json:"type"`
	ChildType string          `json:"childType,omitempty"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	TSCreated string          `json:"tsCreated,omitempty"`
	Read      bool            `json:"read"`
	Deleted   bool            `json:"deleted"`
}

// Country is one entry of the countries list.
type Country struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Code3 string `json:"code3,omitempty"`
}

// Currency is one entry of the currency list.
type Currency struct {
	ID       string `json:"_id,omitempty"`
	Currency string `json:"currency"`
	Name     string `json:"name,omitempty"`
	Ticker   string `json:"ticker"`
	Decimals int    `json:"decimals"`
	Type     string `json:"type,omitempty"`
}

// CurrencyPrice is the price of a ticker on a date.
type CurrencyPrice struct {
	Date     string  `json:"date"`
	Ticker   string  `json:"ticker"`
	RatioUSD float64 `json:"ratioOfExchange"`
}

// ConvertResult is the reply of CurrencyConvert: the converted amount and
// its rounded form.
type ConvertResult struct {
	Amount  float64
	Rounded string
}

func (r *ConvertResult) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err == nil && len(pair) > 0 {
		if err := json.Unmarshal(pair[0], &r.Amount); err != nil {
			return fmt.Errorf("converted amount: %w", err)
		}
		if len(pair) > 1 {
			var rounded any
			if err := json.Unmarshal(pair[1], &rounded); err == nil {
				r.Rounded = fmt.Sprint(rounded)
			}
		}
		return nil
	}
	return json.Unmarshal(b, &r.Amount)
}

// GLAccount is a general ledger account.
type GLAccount struct {
	Number   string `json:"number"`
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"`
	Type     string `json:"type,omitempty"`
}

// ProjectsResult is the reply of ProjectsByHashes.
type ProjectsResult struct {
	Projects map[string]json.RawMessage
	Unknown  []string
}

func (r *ProjectsResult) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return err
	}
	if len(parts) > 0 {
		if err := json.Unmarshal(parts[0], &r.Projects); err != nil {
			return fmt.Errorf("projects: %w", err)
		}
	}
	if len(parts) > 1 {
		if err := json.Unmarshal(parts[1], &r.Unknown); err != nil {
			return fmt.Errorf("unknown hashes: %w", err)
		}
	}
	return nil
}

// decodePositional unmarshals args[i] into dst[i], skipping missing, null
// and nil entries.
func decodePositional(args []json.RawMessage, dst ...any) error {
	for i, d := range dst {
		if i >= len(args) || d == nil {
			continue
		}
		if string(args[i]) == "null" {
			continue
		}
		if err := json.Unmarshal(args[i], d); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}
