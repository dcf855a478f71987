// Package zulip wraps the Zulip REST API surface the bot needs: an event
// queue consumed by HTTP long polling, plus the outbound message, reaction,
// and subscription calls.
//
// Rate limiting strategy, in order of importance:
//
//  1. Long polling. The server holds the /events connection open for up to
//     90s, so an idle bot costs roughly one request per one and a half
//     minutes instead of one per poll.
//  2. RATE_LIMIT_HIT detection. Every call checks for the error code and
//     waits out the advertised retry interval; sends retry up to three
//     times before giving up.
//  3. Header monitoring. A warning is logged when X-RateLimit-Remaining
//     drops under 20% of the limit.
//  4. Backoff. API errors back the poll loop off 5s, transport errors 10s.
package zulip

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/whisperlabs/whisperbot/pkg/config"
	"github.com/whisperlabs/whisperbot/pkg/logger"
)

const (
	longPollTimeout  = 90 * time.Second
	apiErrorBackoff  = 5 * time.Second
	transportBackoff = 10 * time.Second
	defaultRateWait  = 60 * time.Second
	sendMaxAttempts  = 3
)

// Client talks to one Zulip server as one bot user.
type Client struct {
	rest *resty.Client
	poll *resty.Client
}

// NewClient builds a client from credentials. Two HTTP clients are kept:
// the poll client's timeout must outlast the 90s server-side long-poll
// hold, which would be far too slow for ordinary calls.
func NewClient(creds *config.Credentials) *Client {
	base := strings.TrimRight(creds.Site, "/") + "/api/v1"
	newRest := func(timeout time.Duration) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetBasicAuth(creds.Email, creds.APIKey).
			SetTimeout(timeout).
			SetHeader("User-Agent", "whisperbot")
	}
	return &Client{
		rest: newRest(15 * time.Second),
		poll: newRest(longPollTimeout + 30*time.Second),
	}
}

// Register creates a server-side event queue filtered to message events.
func (c *Client) Register(ctx context.Context) (*EventQueue, error) {
	var out struct {
		apiResponse
		EventQueue
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"event_types":     `["message"]`,
			"client_gravatar": "false",
			"apply_markdown":  "false",
		}).
		Post("/register")
	if err != nil {
		return nil, fmt.Errorf("registering event queue: %w", err)
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decoding register response: %w", err)
	}
	if !out.ok() {
		return nil, fmt.Errorf("registering event queue: %s", out.Msg)
	}
	return &out.EventQueue, nil
}

// Events starts the long-poll loop and returns the channel it feeds. The
// loop resumes from the queue cursor, survives rate limits and transient
// errors, re-registers when the server expires the queue, and exits (closing
// the channel) only when ctx is cancelled.
func (c *Client) Events(ctx context.Context, queue *EventQueue) <-chan RawEvent {
	out := make(chan RawEvent)
	go func() {
		defer close(out)
		q := *queue
		for ctx.Err() == nil {
			c.pollOnce(ctx, &q, out)
		}
	}()
	return out
}

// pollOnce issues one long poll and forwards its events.
func (c *Client) pollOnce(ctx context.Context, q *EventQueue, out chan<- RawEvent) {
	var body struct {
		apiResponse
		Events []RawEvent `json:"events"`
	}
	resp, err := c.poll.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"queue_id":      q.QueueID,
			"last_event_id": strconv.FormatInt(q.LastEventID, 10),
			"dont_block":    "false",
		}).
		Get("/events")
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.ErrorCF("zulip", "Event poll failed", map[string]any{"error": err.Error()})
		sleepCtx(ctx, transportBackoff)
		return
	}

	c.logRateLimitInfo(resp)

	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		logger.ErrorCF("zulip", "Malformed event poll response", map[string]any{"error": err.Error()})
		sleepCtx(ctx, apiErrorBackoff)
		return
	}

	switch {
	case body.Code == codeRateLimitHit:
		wait := rateLimitWait(&body.apiResponse, resp)
		logger.WarnCF("zulip", "Rate limit hit on event poll", map[string]any{
			"wait": wait.String(),
			"msg":  body.Msg,
		})
		sleepCtx(ctx, wait)
		return
	case body.Code == codeBadEventQueue:
		logger.WarnCF("zulip", "Event queue expired, re-registering", map[string]any{
			"queue_id": q.QueueID,
		})
		fresh, err := c.Register(ctx)
		if err != nil {
			logger.ErrorCF("zulip", "Re-registration failed", map[string]any{"error": err.Error()})
			sleepCtx(ctx, apiErrorBackoff)
			return
		}
		*q = *fresh
		return
	case !body.ok():
		logger.WarnCF("zulip", "Event poll returned error", map[string]any{
			"code": body.Code,
			"msg":  body.Msg,
		})
		sleepCtx(ctx, apiErrorBackoff)
		return
	}

	// An empty batch means the long poll timed out server-side; loop again
	// immediately.
	for _, ev := range body.Events {
		if ev.ID > q.LastEventID {
			q.LastEventID = ev.ID
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// SendPrivateMessage DMs a user. Returns the new message id and false on
// failure.
func (c *Client) SendPrivateMessage(ctx context.Context, userID int64, content string) (int64, bool) {
	return c.sendMessage(ctx, map[string]string{
		"type":    "private",
		"to":      fmt.Sprintf("[%d]", userID),
		"content": content,
	})
}

// SendStreamMessage posts to a stream topic. Returns the new message id and
// false on failure.
func (c *Client) SendStreamMessage(ctx context.Context, stream, topic, content string) (int64, bool) {
	return c.sendMessage(ctx, map[string]string{
		"type":    "stream",
		"to":      stream,
		"topic":   topic,
		"content": content,
	})
}

func (c *Client) sendMessage(ctx context.Context, form map[string]string) (int64, bool) {
	for attempt := 1; attempt <= sendMaxAttempts; attempt++ {
		var body struct {
			apiResponse
			ID int64 `json:"id"`
		}
		resp, err := c.rest.R().SetContext(ctx).SetFormData(form).Post("/messages")
		if err != nil {
			logger.WarnCF("zulip", "Send failed", map[string]any{"error": err.Error()})
			return 0, false
		}
		c.logRateLimitInfo(resp)
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			logger.WarnCF("zulip", "Malformed send response", map[string]any{"error": err.Error()})
			return 0, false
		}
		if body.Code == codeRateLimitHit {
			if attempt == sendMaxAttempts {
				logger.ErrorCF("zulip", "Rate limit exceeded sending message", map[string]any{
					"attempts": attempt,
				})
				return 0, false
			}
			wait := rateLimitWait(&body.apiResponse, resp)
			logger.WarnCF("zulip", "Rate limit hit sending message", map[string]any{
				"wait":    wait.String(),
				"attempt": attempt,
			})
			if !sleepCtx(ctx, wait) {
				return 0, false
			}
			continue
		}
		if !body.ok() {
			logger.WarnCF("zulip", "Send rejected", map[string]any{"code": body.Code, "msg": body.Msg})
			return 0, false
		}
		return body.ID, true
	}
	return 0, false
}

// DeleteMessage deletes a message by id.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) bool {
	var body apiResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/messages/%d", messageID))
	if err != nil {
		logger.WarnCF("zulip", "Delete failed", map[string]any{
			"message_id": messageID,
			"error":      err.Error(),
		})
		return false
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || !body.ok() {
		logger.WarnCF("zulip", "Delete rejected", map[string]any{
			"message_id": messageID,
			"msg":        body.Msg,
		})
		return false
	}
	return true
}

// ReactToMessage adds an emoji reaction. Failures are logged, not returned;
// a missing reaction is cosmetic.
func (c *Client) ReactToMessage(ctx context.Context, messageID int64, emojiName string) {
	var body apiResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{"emoji_name": emojiName}).
		Post(fmt.Sprintf("/messages/%d/reactions", messageID))
	if err != nil {
		logger.WarnCF("zulip", "Reaction failed", map[string]any{"error": err.Error()})
		return
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || !body.ok() {
		logger.WarnCF("zulip", "Reaction rejected", map[string]any{
			"message_id": messageID,
			"msg":        body.Msg,
		})
	}
}

// AddUserSubscriptions subscribes a user to the given streams.
func (c *Client) AddUserSubscriptions(ctx context.Context, userID int64, streams []string) {
	if len(streams) == 0 {
		return
	}
	var body apiResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"subscriptions": encodeStreamList(streams),
			"principals":    fmt.Sprintf("[%d]", userID),
		}).
		Post("/users/me/subscriptions")
	if err != nil {
		logger.WarnCF("zulip", "Subscription failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || !body.ok() {
		logger.WarnCF("zulip", "Subscription rejected", map[string]any{
			"user_id": userID,
			"streams": strings.Join(streams, ","),
			"msg":     body.Msg,
		})
	}
}

// SubscribeSelf subscribes the bot itself to the given streams, returning
// the per-stream breakdown for the admin reply.
func (c *Client) SubscribeSelf(ctx context.Context, streams []string) (*SubscribeResult, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("no streams provided")
	}
	var body struct {
		apiResponse
		SubscribeResult
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{"subscriptions": encodeStreamList(streams)}).
		Post("/users/me/subscriptions")
	if err != nil {
		return nil, fmt.Errorf("subscribing bot: %w", err)
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decoding subscription response: %w", err)
	}
	if !body.ok() {
		return nil, fmt.Errorf("subscribing bot: %s", body.Msg)
	}
	return &body.SubscribeResult, nil
}

// GetUserByID fetches a user record; false when the lookup fails.
func (c *Client) GetUserByID(ctx context.Context, userID int64) (*User, bool) {
	var body struct {
		apiResponse
		User *User `json:"user"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/users/%d", userID))
	if err != nil {
		logger.WarnCF("zulip", "User lookup failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, false
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || !body.ok() || body.User == nil {
		logger.WarnCF("zulip", "User lookup rejected", map[string]any{
			"user_id": userID,
			"msg":     body.Msg,
		})
		return nil, false
	}
	return body.User, true
}

// GetOwnUser fetches the bot's own profile; false when the lookup fails.
func (c *Client) GetOwnUser(ctx context.Context) (*User, bool) {
	var body struct {
		apiResponse
		User
	}
	resp, err := c.rest.R().SetContext(ctx).Get("/users/me")
	if err != nil {
		logger.WarnCF("zulip", "Own profile lookup failed", map[string]any{"error": err.Error()})
		return nil, false
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil || !body.ok() {
		logger.WarnCF("zulip", "Own profile lookup rejected", map[string]any{"msg": body.Msg})
		return nil, false
	}
	return &body.User, true
}

// rateLimitWait works out how long to back off after RATE_LIMIT_HIT,
// preferring the body's retry-after, then the reset header, then a default.
func rateLimitWait(body *apiResponse, resp *resty.Response) time.Duration {
	if body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	if reset := resp.Header().Get("X-RateLimit-Reset"); reset != "" {
		if ts, err := strconv.ParseFloat(reset, 64); err == nil {
			if wait := time.Until(time.Unix(int64(ts), 0)); wait > 0 {
				return wait
			}
			return 0
		}
	}
	logger.WarnC("zulip", "Could not determine rate limit reset time, using default")
	return defaultRateWait
}

// logRateLimitInfo warns when under 20% of the request budget remains.
func (c *Client) logRateLimitInfo(resp *resty.Response) {
	remaining := resp.Header().Get("X-RateLimit-Remaining")
	limit := resp.Header().Get("X-RateLimit-Limit")
	if remaining == "" || limit == "" {
		return
	}
	rem, err1 := strconv.Atoi(remaining)
	lim, err2 := strconv.Atoi(limit)
	if err1 != nil || err2 != nil || lim == 0 {
		return
	}
	if rem*5 < lim {
		logger.WarnCF("zulip", "Approaching rate limit", map[string]any{
			"remaining": rem,
			"limit":     lim,
		})
	}
}

func encodeStreamList(streams []string) string {
	type sub struct {
		Name string `json:"name"`
	}
	subs := make([]sub, len(streams))
	for i, s := range streams {
		subs[i] = sub{Name: s}
	}
	data, _ := json.Marshal(subs)
	return string(data)
}

// sleepCtx sleeps for d unless ctx is cancelled first; reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
