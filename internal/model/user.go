package model

// AccountType is the role of a staff account inside its company.
type AccountType string

const (
	AccountAdmin      AccountType = "ADMIN"
	AccountSupervisor AccountType = "SUPERVISOR"
	AccountAgent      AccountType = "AGENT"
)

// User is a staff account as seen by this service.  Accounts are managed
// elsewhere; the reservation service only reads them to authorize actions
// and to pick notification recipients.
//
// Fields:
//  FirstName   – display name.
//  Company     – company the account belongs to.
//  House       – house the account supervises (SUPERVISOR only).
//  AccountType – ADMIN, SUPERVISOR or AGENT.
//  PushTokens  – registered device push tokens.
//  IsActive    – false when the account has been disabled.
type User struct {
	Auditable
	FirstName   string      `json:"firstName"`            // users.first_name
	Company     string      `json:"company"`              // users.company
	House       string      `json:"house"`                // users.house
	AccountType AccountType `json:"accountType"`          // users.account_type
	PushTokens  []string    `json:"pushTokens,omitempty"` // users.push_tokens (json)
	IsActive    bool        `json:"isActive"`             // users.is_active
}

// CanAct reports whether the account may perform operations.
func (u User) CanAct() bool { return u.IsActive && !u.IsDeleted }

// WatchesHouse reports whether the account should hear about activity in
// the given house of its company.
func (u User) WatchesHouse(house string) bool {
	switch u.AccountType {
	case AccountAdmin:
		return true
	case AccountSupervisor:
		return u.House != "" && u.House == house
	}
	return false
}
