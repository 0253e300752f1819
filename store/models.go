package store

import (
	"time"
)

// Database rows. Condition/action configuration and the incident payloads
// are JSON text columns, parsed into typed structs at load time.

type RuleRecord struct {
	ID          string  `gorm:"primarykey"`
	CompanyID   string  `gorm:"index:idx_rule_company"`
	ProductID   *string `gorm:"index:idx_rule_company"`
	Name        string
	Description string
	Enabled     bool `gorm:"index"`
	Priority    int
	Severity    string
	Mode        string
	StopOnMatch bool
	Scope       string // JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Conditions []ConditionRecord `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE"`
	Actions    []ActionRecord    `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE"`
}

type ConditionRecord struct {
	ID        string `gorm:"primarykey"`
	RuleID    string `gorm:"index"`
	Type      string
	Config    string // JSON
	Priority  int
	CreatedAt time.Time
}

type ActionRecord struct {
	ID        string `gorm:"primarykey"`
	RuleID    string `gorm:"index"`
	Type      string
	Config    string // JSON
	Priority  int
	CreatedAt time.Time
}

type ExemptionRecord struct {
	ID        string `gorm:"primarykey"`
	CompanyID string `gorm:"index"`
	Type      string
	Value     string
	CreatedAt time.Time
}

type IncidentRecord struct {
	ID              string `gorm:"primarykey"`
	CompanyID       string `gorm:"index"`
	ProductID       *string
	RuleID          *string
	Source          string
	ContentID       string
	AuthorID        string `gorm:"index"`
	ContentSnapshot string // JSON
	RuleHits        string // JSON
	Features        string // JSON
	ActionsTaken    string // JSON
	Status          string `gorm:"index"`
	ReviewNotes     string
	Reviewer        string
	ReviewedAt      *time.Time
	CreatedAt       time.Time
}

type AuditEventRecord struct {
	ID        string `gorm:"primarykey"`
	CompanyID string `gorm:"index"`
	Actor     string
	Action    string
	Entity    string
	EntityID  string
	Metadata  string // JSON
	CreatedAt time.Time
}

// WebhookEventRecord backs ingress idempotency: one row per distinct
// upstream event ID.
type WebhookEventRecord struct {
	EventID     string `gorm:"primarykey"`
	EventType   string
	Payload     string // JSON
	Processed   bool
	Error       string
	ProcessedAt *time.Time
	CreatedAt   time.Time
}
