package ingest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/skimmerhq/skimmer/engine"
	"github.com/skimmerhq/skimmer/rules"
	"github.com/skimmerhq/skimmer/store"
)

// Wire DTOs for the admin API. Condition and action configs cross the wire
// as raw JSON and are parsed into their typed variants on the way in.

type conditionDTO struct {
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type"`
	Config   json.RawMessage `json:"config"`
	Priority int             `json:"priority"`
}

type actionDTO struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type"`
	Config   rules.ActionConfig `json:"config"`
	Priority int                `json:"priority"`
}

type ruleDTO struct {
	ID          string         `json:"id,omitempty"`
	CompanyID   string         `json:"companyId"`
	ProductID   *string        `json:"productId,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Enabled     bool           `json:"enabled"`
	Priority    int            `json:"priority"`
	Severity    string         `json:"severity"`
	Mode        string         `json:"mode"`
	StopOnMatch bool           `json:"stopOnMatch"`
	Scope       rules.Scope    `json:"scope"`
	Conditions  []conditionDTO `json:"conditions"`
	Actions     []actionDTO    `json:"actions"`
}

func (dto *ruleDTO) toRule() (*rules.Rule, error) {
	r := &rules.Rule{
		ID:          dto.ID,
		CompanyID:   dto.CompanyID,
		ProductID:   dto.ProductID,
		Name:        dto.Name,
		Description: dto.Description,
		Enabled:     dto.Enabled,
		Priority:    dto.Priority,
		Severity:    rules.Severity(dto.Severity),
		Mode:        rules.Mode(dto.Mode),
		StopOnMatch: dto.StopOnMatch,
		Scope:       dto.Scope,
	}
	for _, c := range dto.Conditions {
		cfg, err := rules.ParseConditionConfig(rules.ConditionType(c.Type), c.Config)
		if err != nil {
			return nil, err
		}
		r.Conditions = append(r.Conditions, rules.Condition{
			ID:       c.ID,
			Type:     rules.ConditionType(c.Type),
			Priority: c.Priority,
			Config:   cfg,
		})
	}
	for _, a := range dto.Actions {
		r.Actions = append(r.Actions, rules.Action{
			ID:       a.ID,
			Type:     rules.ActionType(a.Type),
			Priority: a.Priority,
			Config:   a.Config,
		})
	}
	return r, nil
}

func toRuleDTO(r *rules.Rule) ruleDTO {
	dto := ruleDTO{
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
		Scope:       r.Scope,
	}
	for _, c := range r.Conditions {
		cfg, err := json.Marshal(c.Config)
		if err != nil || c.Config == nil {
			cfg = json.RawMessage("{}")
		}
		dto.Conditions = append(dto.Conditions, conditionDTO{
			ID:       c.ID,
			Type:     string(c.Type),
			Config:   cfg,
			Priority: c.Priority,
		})
	}
	for _, a := range r.Actions {
		dto.Actions = append(dto.Actions, actionDTO{
			ID:       a.ID,
			Type:     string(a.Type),
			Config:   a.Config,
			Priority: a.Priority,
		})
	}
	return dto
}

// actor identifies who performed an admin operation, for the audit log.
// Authentication itself is handled upstream of this service.
func actor(c echo.Context) string {
	if v := c.Request().Header.Get("X-Actor-Id"); v != "" {
		return v
	}
	return "admin"
}

func jsonError(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

func (srv *Server) handleListRules(c echo.Context) error {
	companyID := c.QueryParam("companyId")
	if companyID == "" {
		return jsonError(c, http.StatusBadRequest, "companyId required")
	}
	listed, err := srv.store.ListRules(c.Request().Context(), companyID)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "listing rules")
	}
	out := make([]ruleDTO, 0, len(listed))
	for i := range listed {
		out = append(out, toRuleDTO(&listed[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (srv *Server) handleCreateRule(c echo.Context) error {
	var dto ruleDTO
	if err := c.Bind(&dto); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed rule")
	}
	if dto.CompanyID == "" {
		return jsonError(c, http.StatusBadRequest, "companyId required")
	}
	r, err := dto.toRule()
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if err := rules.ValidateRule(r); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if err := srv.store.CreateRule(ctx, r); err != nil {
		return jsonError(c, http.StatusInternalServerError, "creating rule")
	}
	srv.source.Invalidate(r.CompanyID)
	srv.store.RecordAudit(ctx, r.CompanyID, actor(c), "create", "rule", r.ID, map[string]string{"name": r.Name})
	return c.JSON(http.StatusCreated, map[string]string{"id": r.ID})
}

func (srv *Server) handleGetRule(c echo.Context) error {
	r, err := srv.store.GetRule(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "rule not found")
	}
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "loading rule")
	}
	return c.JSON(http.StatusOK, toRuleDTO(r))
}

func (srv *Server) handleUpdateRule(c echo.Context) error {
	var dto ruleDTO
	if err := c.Bind(&dto); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed rule")
	}
	dto.ID = c.Param("id")
	r, err := dto.toRule()
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if err := rules.ValidateRule(r); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if err := srv.store.UpdateRule(ctx, r); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "rule not found")
		}
		return jsonError(c, http.StatusInternalServerError, "updating rule")
	}
	srv.source.Invalidate(r.CompanyID)
	srv.store.RecordAudit(ctx, r.CompanyID, actor(c), "update", "rule", r.ID, map[string]string{"name": r.Name})
	return c.JSON(http.StatusOK, map[string]string{"id": r.ID})
}

func (srv *Server) handleDeleteRule(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	r, err := srv.store.GetRule(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "rule not found")
	}
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "loading rule")
	}
	if err := srv.store.DeleteRule(ctx, id); err != nil {
		return jsonError(c, http.StatusInternalServerError, "deleting rule")
	}
	srv.source.Invalidate(r.CompanyID)
	srv.store.RecordAudit(ctx, r.CompanyID, actor(c), "delete", "rule", id, map[string]string{"name": r.Name})
	return c.NoContent(http.StatusNoContent)
}

// handleTestRule dry-runs a stored rule against sample text: per-condition
// results, no incident, no enforcement.
func (srv *Server) handleTestRule(c echo.Context) error {
	var body struct {
		SampleText string `json:"sampleText"`
	}
	if err := c.Bind(&body); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed request")
	}
	r, err := srv.store.GetRule(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "rule not found")
	}
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "loading rule")
	}
	results := srv.engine.TestRule(r, body.SampleText)
	wouldMatch := len(results) > 0
	for _, res := range results {
		if !res.Matches {
			wouldMatch = false
			break
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ruleId":     r.ID,
		"wouldMatch": wouldMatch,
		"conditions": results,
	})
}

type exemptionDTO struct {
	ID        string `json:"id,omitempty"`
	CompanyID string `json:"companyId"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

func (srv *Server) handleListExemptions(c echo.Context) error {
	companyID := c.QueryParam("companyId")
	if companyID == "" {
		return jsonError(c, http.StatusBadRequest, "companyId required")
	}
	out, err := srv.store.ListExemptions(c.Request().Context(), companyID)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "listing exemptions")
	}
	return c.JSON(http.StatusOK, out)
}

func (srv *Server) handleCreateExemption(c echo.Context) error {
	var dto exemptionDTO
	if err := c.Bind(&dto); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed exemption")
	}
	if dto.CompanyID == "" {
		return jsonError(c, http.StatusBadRequest, "companyId required")
	}
	e := &rules.Exemption{
		CompanyID: dto.CompanyID,
		Type:      rules.ExemptionType(dto.Type),
		Value:     dto.Value,
	}
	if err := rules.ValidateExemption(e); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if err := srv.store.CreateExemption(ctx, e); err != nil {
		return jsonError(c, http.StatusInternalServerError, "creating exemption")
	}
	srv.source.Invalidate(e.CompanyID)
	srv.store.RecordAudit(ctx, e.CompanyID, actor(c), "create", "exemption", e.ID, map[string]string{"type": string(e.Type), "value": e.Value})
	return c.JSON(http.StatusCreated, map[string]string{"id": e.ID})
}

func (srv *Server) handleDeleteExemption(c echo.Context) error {
	ctx := c.Request().Context()
	companyID := c.QueryParam("companyId")
	if err := srv.store.DeleteExemption(ctx, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "exemption not found")
		}
		return jsonError(c, http.StatusInternalServerError, "deleting exemption")
	}
	if companyID != "" {
		srv.source.Invalidate(companyID)
		srv.store.RecordAudit(ctx, companyID, actor(c), "delete", "exemption", c.Param("id"), nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// incidentView decodes the stored JSON columns for API consumers.
type incidentView struct {
	ID              string          `json:"id"`
	CompanyID       string          `json:"companyId"`
	ProductID       *string         `json:"productId,omitempty"`
	RuleID          *string         `json:"ruleId,omitempty"`
	Source          string          `json:"source"`
	ContentID       string          `json:"contentId"`
	AuthorID        string          `json:"authorId"`
	ContentSnapshot json.RawMessage `json:"contentSnapshot"`
	RuleHits        json.RawMessage `json:"ruleHits"`
	Features        json.RawMessage `json:"features"`
	ActionsTaken    json.RawMessage `json:"actionsTaken"`
	Status          string          `json:"status"`
	ReviewNotes     string          `json:"reviewNotes,omitempty"`
	Reviewer        string          `json:"reviewer,omitempty"`
}

func toIncidentView(rec *store.IncidentRecord) incidentView {
	return incidentView{
		ID:              rec.ID,
		CompanyID:       rec.CompanyID,
		ProductID:       rec.ProductID,
		RuleID:          rec.RuleID,
		Source:          rec.Source,
		ContentID:       rec.ContentID,
		AuthorID:        rec.AuthorID,
		ContentSnapshot: json.RawMessage(rec.ContentSnapshot),
		RuleHits:        json.RawMessage(rec.RuleHits),
		Features:        json.RawMessage(rec.Features),
		ActionsTaken:    json.RawMessage(rec.ActionsTaken),
		Status:          rec.Status,
		ReviewNotes:     rec.ReviewNotes,
		Reviewer:        rec.Reviewer,
	}
}

func (srv *Server) handleListIncidents(c echo.Context) error {
	companyID := c.QueryParam("companyId")
	if companyID == "" {
		return jsonError(c, http.StatusBadRequest, "companyId required")
	}
	status := engine.IncidentStatus(c.QueryParam("status"))
	recs, err := srv.store.ListIncidents(c.Request().Context(), companyID, status, 0)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "listing incidents")
	}
	out := make([]incidentView, 0, len(recs))
	for i := range recs {
		out = append(out, toIncidentView(&recs[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (srv *Server) handleGetIncident(c echo.Context) error {
	rec, err := srv.store.GetIncident(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "incident not found")
	}
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "loading incident")
	}
	return c.JSON(http.StatusOK, toIncidentView(rec))
}

func (srv *Server) handleReviewIncident(c echo.Context) error {
	var body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed review")
	}
	if len(body.Notes) > 1000 {
		return jsonError(c, http.StatusBadRequest, "notes too long")
	}
	rec, err := srv.store.ReviewIncident(c.Request().Context(), c.Param("id"), engine.IncidentStatus(body.Status), actor(c), body.Notes)
	if errors.Is(err, store.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "incident not found")
	}
	if errors.Is(err, engine.ErrInvalidTransition) {
		return jsonError(c, http.StatusConflict, err.Error())
	}
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "reviewing incident")
	}
	return c.JSON(http.StatusOK, toIncidentView(rec))
}

func (srv *Server) handleListAudit(c echo.Context) error {
	companyID := c.QueryParam("companyId")
	if companyID == "" {
		return jsonError(c, http.StatusBadRequest, "companyId required")
	}
	recs, err := srv.store.ListAuditEvents(c.Request().Context(), companyID, 0)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "listing audit events")
	}
	return c.JSON(http.StatusOK, recs)
}
