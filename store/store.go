// Package store is the durable home of rules, exemptions, incidents, audit
// events, and webhook idempotency state, on gorm with sqlite or postgres
// underneath.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skimmerhq/skimmer/engine"
	"github.com/skimmerhq/skimmer/rules"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ engine.RuleSource = (*Store)(nil)

// NewStore opens the database named by url (sqlite:// or postgres://) and
// runs migrations.
func NewStore(url string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dial gorm.Dialector
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		path := url[len("sqlite://"):]
		// ensure the parent directory exists when initializing a db file
		if !strings.Contains(path, ":memory:") {
			os.MkdirAll(filepath.Dir(path), os.ModePerm)
		}
		dial = sqlite.Open(path)
	case strings.HasPrefix(url, "postgresql://"), strings.HasPrefix(url, "postgres://"):
		dial = postgres.Open(url)
	default:
		return nil, fmt.Errorf("unsupported or unrecognized database URL")
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: slogGorm.New(),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, m := range []any{
		&RuleRecord{},
		&ConditionRecord{},
		&ActionRecord{},
		&ExemptionRecord{},
		&IncidentRecord{},
		&AuditEventRecord{},
		&WebhookEventRecord{},
	} {
		if err := db.AutoMigrate(m); err != nil {
			return nil, fmt.Errorf("migrating schema: %w", err)
		}
	}

	return &Store{db: db, logger: logger}, nil
}

// ListEnabledRules returns the candidate rules for one evaluation: enabled,
// matching company and product (nil product selects company-wide rules),
// sorted descending by priority with conditions descending and actions
// ascending.
func (s *Store) ListEnabledRules(ctx context.Context, companyID string, productID *string) ([]rules.Rule, error) {
	q := s.db.WithContext(ctx).
		Where("company_id = ? AND enabled = ?", companyID, true).
		Preload("Conditions", func(db *gorm.DB) *gorm.DB {
			return db.Order("priority desc")
		}).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("priority asc")
		}).
		Order("priority desc")
	if productID == nil {
		q = q.Where("product_id IS NULL")
	} else {
		q = q.Where("product_id = ?", *productID)
	}

	var recs []RuleRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing enabled rules: %w", err)
	}
	out := make([]rules.Rule, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.toRule(rec))
	}
	return out, nil
}

func (s *Store) ListRules(ctx context.Context, companyID string) ([]rules.Rule, error) {
	var recs []RuleRecord
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Preload("Conditions", func(db *gorm.DB) *gorm.DB { return db.Order("priority desc") }).
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("priority asc") }).
		Order("priority desc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	out := make([]rules.Rule, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.toRule(rec))
	}
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*rules.Rule, error) {
	var rec RuleRecord
	err := s.db.WithContext(ctx).
		Preload("Conditions", func(db *gorm.DB) *gorm.DB { return db.Order("priority desc") }).
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("priority asc") }).
		First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading rule: %w", err)
	}
	r := s.toRule(rec)
	return &r, nil
}

// CreateRule stores a validated rule, assigning IDs where missing.
func (s *Store) CreateRule(ctx context.Context, r *rules.Rule) error {
	rec, err := fromRule(r)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("creating rule: %w", err)
	}
	r.ID = rec.ID
	return nil
}

// UpdateRule replaces the rule row and its condition/action sets.
func (s *Store) UpdateRule(ctx context.Context, r *rules.Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule ID required for update")
	}
	rec, err := fromRule(r)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", rec.ID).Delete(&RuleRecord{})
		if res.Error != nil {
			return fmt.Errorf("replacing rule: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("rule_id = ?", rec.ID).Delete(&ConditionRecord{}).Error; err != nil {
			return fmt.Errorf("replacing conditions: %w", err)
		}
		if err := tx.Where("rule_id = ?", rec.ID).Delete(&ActionRecord{}).Error; err != nil {
			return fmt.Errorf("replacing actions: %w", err)
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("storing rule: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&RuleRecord{})
		if res.Error != nil {
			return fmt.Errorf("deleting rule: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("rule_id = ?", id).Delete(&ConditionRecord{}).Error; err != nil {
			return fmt.Errorf("deleting conditions: %w", err)
		}
		if err := tx.Where("rule_id = ?", id).Delete(&ActionRecord{}).Error; err != nil {
			return fmt.Errorf("deleting actions: %w", err)
		}
		return nil
	})
}

func (s *Store) ListExemptions(ctx context.Context, companyID string) ([]rules.Exemption, error) {
	var recs []ExemptionRecord
	if err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing exemptions: %w", err)
	}
	out := make([]rules.Exemption, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rules.Exemption{
			ID:        rec.ID,
			CompanyID: rec.CompanyID,
			Type:      rules.ExemptionType(rec.Type),
			Value:     rec.Value,
		})
	}
	return out, nil
}

func (s *Store) CreateExemption(ctx context.Context, e *rules.Exemption) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	rec := ExemptionRecord{
		ID:        e.ID,
		CompanyID: e.CompanyID,
		Type:      string(e.Type),
		Value:     e.Value,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("creating exemption: %w", err)
	}
	return nil
}

func (s *Store) DeleteExemption(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&ExemptionRecord{})
	if res.Error != nil {
		return fmt.Errorf("deleting exemption: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateIncident persists an evaluation result together with its action
// log, always in pending status.
func (s *Store) CreateIncident(ctx context.Context, companyID string, productID *string, data *engine.IncidentData, actions []engine.ActionResult) (*IncidentRecord, error) {
	var ruleID *string
	if len(data.RuleHits) > 0 {
		ruleID = &data.RuleHits[0].RuleID
	}
	rec := IncidentRecord{
		ID:              uuid.NewString(),
		CompanyID:       companyID,
		ProductID:       productID,
		RuleID:          ruleID,
		Source:          string(data.Source),
		ContentID:       data.ContentID,
		AuthorID:        data.AuthorID,
		ContentSnapshot: mustJSON(data.ContentSnapshot),
		RuleHits:        mustJSON(data.RuleHits),
		Features:        mustJSON(data.Features),
		ActionsTaken:    mustJSON(actions),
		Status:          string(engine.StatusPending),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("creating incident: %w", err)
	}
	return &rec, nil
}

func (s *Store) GetIncident(ctx context.Context, id string) (*IncidentRecord, error) {
	var rec IncidentRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading incident: %w", err)
	}
	return &rec, nil
}

func (s *Store) ListIncidents(ctx context.Context, companyID string, status engine.IncidentStatus, limit int) ([]IncidentRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Where("company_id = ?", companyID).Order("created_at desc").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var recs []IncidentRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing incidents: %w", err)
	}
	return recs, nil
}

// ReviewIncident applies a terminal human-review decision. The status state
// machine only allows pending incidents to move, and they move exactly once.
func (s *Store) ReviewIncident(ctx context.Context, id string, status engine.IncidentStatus, reviewer, notes string) (*IncidentRecord, error) {
	var rec IncidentRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("loading incident: %w", err)
		}
		if !engine.IncidentStatus(rec.Status).CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", engine.ErrInvalidTransition, rec.Status, status)
		}
		now := time.Now().UTC()
		rec.Status = string(status)
		rec.ReviewNotes = notes
		rec.Reviewer = reviewer
		rec.ReviewedAt = &now
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("updating incident: %w", err)
		}
		audit := AuditEventRecord{
			ID:        uuid.NewString(),
			CompanyID: rec.CompanyID,
			Actor:     reviewer,
			Action:    string(status),
			Entity:    "incident",
			EntityID:  id,
			Metadata:  mustJSON(map[string]string{"notes": notes}),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("recording audit event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) RecordAudit(ctx context.Context, companyID, actor, action, entity, entityID string, metadata any) error {
	rec := AuditEventRecord{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Actor:     actor,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Metadata:  mustJSON(metadata),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("recording audit event: %w", err)
	}
	return nil
}

func (s *Store) ListAuditEvents(ctx context.Context, companyID string, limit int) ([]AuditEventRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var recs []AuditEventRecord
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	return recs, nil
}

// InsertWebhookEvent records an inbound event for idempotency. Returns
// false when the event ID was already seen.
func (s *Store) InsertWebhookEvent(ctx context.Context, eventID, eventType, payload string) (bool, error) {
	rec := WebhookEventRecord{
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("recording webhook event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkWebhookProcessed records the outcome of async event processing.
func (s *Store) MarkWebhookProcessed(ctx context.Context, eventID string, procErr error) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"processed":    procErr == nil,
		"processed_at": &now,
	}
	if procErr != nil {
		updates["error"] = procErr.Error()
	}
	err := s.db.WithContext(ctx).
		Model(&WebhookEventRecord{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("updating webhook event: %w", err)
	}
	return nil
}

// toRule converts a row set into the domain type. Malformed stored config
// degrades: a bad scope becomes scope-all, a bad condition config becomes a
// never-matching condition. Bad rows are logged, never fatal.
func (s *Store) toRule(rec RuleRecord) rules.Rule {
	scope := rules.Scope{Type: rules.ScopeAll}
	if rec.Scope != "" {
		if err := json.Unmarshal([]byte(rec.Scope), &scope); err != nil {
			s.logger.Warn("malformed rule scope", "ruleID", rec.ID, "err", err)
			scope = rules.Scope{Type: rules.ScopeAll}
		}
	}
	r := rules.Rule{
		ID:          rec.ID,
		CompanyID:   rec.CompanyID,
		ProductID:   rec.ProductID,
		Name:        rec.Name,
		Description: rec.Description,
		Enabled:     rec.Enabled,
		Priority:    rec.Priority,
		Severity:    rules.Severity(rec.Severity),
		Mode:        rules.Mode(rec.Mode),
		StopOnMatch: rec.StopOnMatch,
		Scope:       scope,
	}
	for _, c := range rec.Conditions {
		cfg, err := rules.ParseConditionConfig(rules.ConditionType(c.Type), json.RawMessage(c.Config))
		if err != nil {
			s.logger.Warn("unusable condition config", "ruleID", rec.ID, "conditionID", c.ID, "err", err)
			cfg = nil
		}
		r.Conditions = append(r.Conditions, rules.Condition{
			ID:       c.ID,
			Type:     rules.ConditionType(c.Type),
			Priority: c.Priority,
			Config:   cfg,
		})
	}
	for _, a := range rec.Actions {
		var cfg rules.ActionConfig
		if a.Config != "" {
			if err := json.Unmarshal([]byte(a.Config), &cfg); err != nil {
				s.logger.Warn("unusable action config", "ruleID", rec.ID, "actionID", a.ID, "err", err)
				cfg = rules.ActionConfig{}
			}
		}
		r.Actions = append(r.Actions, rules.Action{
			ID:       a.ID,
			Type:     rules.ActionType(a.Type),
			Priority: a.Priority,
			Config:   cfg,
		})
	}
	return r
}

func fromRule(r *rules.Rule) (RuleRecord, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	scope, err := json.Marshal(r.Scope)
	if err != nil {
		return RuleRecord{}, fmt.Errorf("encoding scope: %w", err)
	}
	rec := RuleRecord{
		ID:          r.ID,
		CompanyID:   r.CompanyID,
		ProductID:   r.ProductID,
		Name:        r.Name,
		Description: r.Description,
		Enabled:     r.Enabled,
		Priority:    r.Priority,
		Severity:    string(r.Severity),
		Mode:        string(r.Mode),
		StopOnMatch: r.StopOnMatch,
		Scope:       string(scope),
	}
	for i := range r.Conditions {
		c := &r.Conditions[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		cfg, err := json.Marshal(c.Config)
		if err != nil {
			return RuleRecord{}, fmt.Errorf("encoding condition config: %w", err)
		}
		rec.Conditions = append(rec.Conditions, ConditionRecord{
			ID:       c.ID,
			RuleID:   r.ID,
			Type:     string(c.Type),
			Config:   string(cfg),
			Priority: c.Priority,
		})
	}
	for i := range r.Actions {
		a := &r.Actions[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		cfg, err := json.Marshal(a.Config)
		if err != nil {
			return RuleRecord{}, fmt.Errorf("encoding action config: %w", err)
		}
		rec.Actions = append(rec.Actions, ActionRecord{
			ID:       a.ID,
			RuleID:   r.ID,
			Type:     string(a.Type),
			Config:   string(cfg),
			Priority: a.Priority,
		})
	}
	return rec, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// all persisted payload types are plain data; this cannot fail for them
		return "{}"
	}
	return string(b)
}
