package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/skimmerhq/skimmer/engine"
	"github.com/skimmerhq/skimmer/rules"
)

const processTimeout = 30 * time.Second

// webhookEvent is the envelope the platform delivers.
type webhookEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"` // string or number upstream; opaque here
	Data      eventData       `json:"data"`
}

type eventData struct {
	Message   *contentRef `json:"message"`
	Post      *contentRef `json:"post"`
	Channel   *idRef      `json:"channel"`
	Forum     *idRef      `json:"forum"`
	Author    *authorRef  `json:"author"`
	CompanyID string      `json:"company_id"`
	ProductID string      `json:"product_id"`
}

type contentRef struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type idRef struct {
	ID string `json:"id"`
}

type authorRef struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func (srv *Server) handleWebhook(c echo.Context) error {
	webhooksReceived.Inc()

	if !srv.limiters.Allow(c.RealIP()) {
		webhooksRejected.WithLabelValues("rate_limited").Inc()
		c.Response().Header().Set("Retry-After", "60")
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "reading body"})
	}

	if !srv.verifySignature(body, c.Request().Header.Get("X-Whop-Signature")) {
		webhooksRejected.WithLabelValues("bad_signature").Inc()
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		webhooksRejected.WithLabelValues("bad_payload").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed event"})
	}
	if evt.ID == "" || evt.Type == "" {
		webhooksRejected.WithLabelValues("bad_payload").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "event id and type required"})
	}

	// idempotency: cache fast-path, then the durable event row decides
	ctx := c.Request().Context()
	if srv.cache != nil {
		if seen, _ := srv.cache.Get(ctx, "webhook-seen", evt.ID); seen != "" {
			webhooksDuplicate.Inc()
			return c.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
		}
	}
	payload, _ := json.Marshal(evt.Data)
	created, err := srv.store.InsertWebhookEvent(ctx, evt.ID, evt.Type, string(payload))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "storing event"})
	}
	if !created {
		webhooksDuplicate.Inc()
		return c.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
	}
	if srv.cache != nil {
		srv.cache.Set(ctx, "webhook-seen", evt.ID, "1")
	}

	// processing happens off the request path; the outcome lands on the
	// event row, not in the HTTP response
	go srv.processEvent(evt)

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// verifySignature checks the hex HMAC-SHA256 of the payload. With no secret
// configured verification is skipped, which is only acceptable outside
// production.
func (srv *Server) verifySignature(payload []byte, signature string) bool {
	if srv.webhookSecret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(srv.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (srv *Server) processEvent(evt webhookEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	err := srv.runEvent(ctx, evt)
	if err != nil {
		eventsFailed.Inc()
		srv.logger.Error("webhook event processing failed", "eventID", evt.ID, "type", evt.Type, "err", err)
	} else {
		eventsProcessed.Inc()
	}
	if markErr := srv.store.MarkWebhookProcessed(ctx, evt.ID, err); markErr != nil {
		srv.logger.Error("marking webhook event", "eventID", evt.ID, "err", markErr)
	}
}

func (srv *Server) runEvent(ctx context.Context, evt webhookEvent) error {
	var (
		source  rules.Source
		content *contentRef
		channel *idRef
	)
	switch evt.Type {
	case "message.created", "message.updated":
		source = rules.SourceChat
		content = evt.Data.Message
		channel = evt.Data.Channel
	case "forum_post.created", "forum_post.updated":
		source = rules.SourceForum
		content = evt.Data.Post
		channel = evt.Data.Forum
	default:
		// unhandled event types are acknowledged and dropped
		return nil
	}
	if content == nil || content.Content == "" || channel == nil || evt.Data.Author == nil {
		return nil
	}

	var productID *string
	if evt.Data.ProductID != "" {
		productID = &evt.Data.ProductID
	}

	req := engine.EvalRequest{
		CompanyID:   evt.Data.CompanyID,
		ProductID:   productID,
		Source:      source,
		ChannelID:   channel.ID,
		Content:     content.Content,
		AuthorID:    evt.Data.Author.ID,
		AuthorRoles: evt.Data.Author.Roles,
	}

	if srv.counters != nil {
		srv.counters.Increment(ctx, "messages", req.AuthorID)
		srv.counters.IncrementDistinct(ctx, "channel-authors", req.ChannelID, req.AuthorID)
	}

	incident, err := srv.engine.Evaluate(ctx, req)
	if err != nil {
		return fmt.Errorf("evaluating event: %w", err)
	}
	if incident == nil {
		return nil
	}
	incident.ContentID = content.ID

	actions := srv.engine.ApplyActions(ctx, incident, srv.enforcer, engine.ActionTarget{
		ChannelID:  channel.ID,
		ContentID:  content.ID,
		AuthorID:   evt.Data.Author.ID,
		AuthorName: evt.Data.Author.Username,
	})

	if _, err := srv.store.CreateIncident(ctx, req.CompanyID, productID, incident, actions); err != nil {
		return fmt.Errorf("persisting incident: %w", err)
	}
	incidentsCreated.Inc()
	return nil
}
