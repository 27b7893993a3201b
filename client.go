// Package tradematch embeds the recommendation and trade-matching engine in a
// Go process: ranked feeds, trade candidates, interaction tracking and
// embedding generation over Redis/Valkey and the host's item catalog.
package tradematch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/tradematch/internal/app"
	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	"github.com/kailas-cloud/tradematch/internal/domain/ranking"
	"github.com/kailas-cloud/tradematch/internal/queue"
	"github.com/kailas-cloud/tradematch/internal/supervisor"
	scoringuc "github.com/kailas-cloud/tradematch/internal/usecase/scoring"
)

// publisher is the slice of the queue the client enqueues into.
type publisher interface {
	Publish(topic string, v any) error
}

// Client is the tradematch library entry point. Interaction and embedding
// calls enqueue work for background workers and return immediately; ranking
// calls run synchronously.
type Client struct {
	app       *app.App
	publisher publisher
	now       func() time.Time
	stop      context.CancelFunc
	done      <-chan error
}

// New connects to the stores, starts the background workers and returns a
// Client. Close must be called to release it.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(cc)
	}
	if cc.err != nil {
		return nil, fmt.Errorf("tradematch: %w", cc.err)
	}
	if len(cc.cfg.Database.Addrs) == 0 {
		return nil, errors.New("tradematch: database address required (use WithRedis or WithValkey)")
	}

	cc.finalize()
	if err := cc.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tradematch: %w", err)
	}

	a, err := app.Build(ctx, cc.cfg, cc.logger)
	if err != nil {
		return nil, fmt.Errorf("tradematch: %w", err)
	}
	if cc.weights != nil {
		if err := a.Weights.Swap(toInternalWeights(*cc.weights), scoringuc.SourceAPI); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("tradematch: %w", err)
		}
	}

	tree := supervisor.NewTree(cc.logger.Named("supervisor"), supervisor.TreeConfig{})
	a.Supervise(tree)
	runCtx, stop := context.WithCancel(context.Background())
	done := tree.ServeBackground(runCtx)

	if err := a.WaitForWorkers(ctx); err != nil {
		stop()
		<-done
		_ = a.Close()
		return nil, fmt.Errorf("tradematch: %w", err)
	}

	return &Client{app: a, publisher: a.Bus, now: time.Now, stop: stop, done: done}, nil
}

// Close stops the workers and releases the stores. Events still queued are
// discarded.
func (c *Client) Close() error {
	c.stop()
	<-c.done
	if err := c.app.Close(); err != nil {
		return fmt.Errorf("tradematch: close: %w", err)
	}
	return nil
}

// Browse returns a member's feed.
func (c *Client) Browse(ctx context.Context, memberID string, q BrowseQuery) (Page, error) {
	sort, err := ranking.ParseSortField(string(q.Sort))
	if err != nil {
		return Page{}, err
	}
	paging, err := c.paging(q.Page, q.Size)
	if err != nil {
		return Page{}, err
	}
	req, err := ranking.NewBrowseRequest(memberID, sort, q.RadiusMeters, q.Category, paging)
	if err != nil {
		return Page{}, err
	}

	p, err := c.app.Ranker.Browse(ctx, req)
	if err != nil {
		return Page{}, fmt.Errorf("browse: %w", err)
	}
	return fromInternalPage(p), nil
}

// TradeCandidates ranks the requester's items for a trade offer on targetItemID.
func (c *Client) TradeCandidates(ctx context.Context, requesterID, targetItemID string, page, size int) (Page, error) {
	paging, err := c.paging(page, size)
	if err != nil {
		return Page{}, err
	}
	req, err := ranking.NewTradeRequest(requesterID, targetItemID, paging)
	if err != nil {
		return Page{}, err
	}

	p, err := c.app.Ranker.TradeCandidates(ctx, req)
	if err != nil {
		return Page{}, fmt.Errorf("trade candidates: %w", err)
	}
	return fromInternalPage(p), nil
}

// RecordView enqueues a view. Repeated views on the same day count once.
func (c *Client) RecordView(memberID, itemID, category string) error {
	return c.interaction(memberID, itemID, category, dominter.TypeView)
}

// Like enqueues a like.
func (c *Client) Like(memberID, itemID, category string) error {
	return c.interaction(memberID, itemID, category, dominter.TypeLike)
}

// Unlike enqueues the removal of a like.
func (c *Client) Unlike(memberID, itemID, category string) error {
	return c.interaction(memberID, itemID, category, dominter.TypeUnlike)
}

// IndexItem enqueues embedding generation for an item's text.
func (c *Client) IndexItem(itemID, text string) error {
	if itemID == "" || text == "" {
		return fmt.Errorf("%w: item id and text are required", ErrInvalidRequest)
	}
	return c.publisher.Publish(queue.TopicItemEmbedding, queue.ItemEmbeddingJob{ItemID: itemID, Text: text})
}

// ItemText pairs an item with the text its vector is computed from.
type ItemText struct {
	ItemID string
	Text   string
}

// IndexItems enqueues one batch embedding job for many items. Items the
// backend cannot vectorize stay unscored.
func (c *Client) IndexItems(items []ItemText) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidRequest)
	}
	job := queue.ItemEmbeddingBatchJob{Items: make([]queue.ItemEmbeddingJob, len(items))}
	for i, it := range items {
		if it.ItemID == "" || it.Text == "" {
			return fmt.Errorf("%w: item %d: id and text are required", ErrInvalidRequest, i)
		}
		job.Items[i] = queue.ItemEmbeddingJob{ItemID: it.ItemID, Text: it.Text}
	}
	return c.publisher.Publish(queue.TopicItemEmbeddingBatch, job)
}

// IndexMemberPreference enqueues embedding generation for a member's
// preferred categories.
func (c *Client) IndexMemberPreference(memberID string, categories []string) error {
	if memberID == "" || len(categories) == 0 {
		return fmt.Errorf("%w: member id and categories are required", ErrInvalidRequest)
	}
	return c.publisher.Publish(queue.TopicPreferenceEmbedding, queue.PreferenceEmbeddingJob{
		MemberID:   memberID,
		Categories: categories,
	})
}

// DeleteItemEmbedding removes an item's vector. Best effort: failures are
// logged, never returned.
func (c *Client) DeleteItemEmbedding(ctx context.Context, itemID string) {
	c.app.Indexer.DeleteItemEmbedding(ctx, itemID)
}

// DeleteMember erases the member's preference vector and interaction
// counters. Call it from the host's member deletion path.
func (c *Client) DeleteMember(ctx context.Context, memberID string) error {
	return c.app.Members.Erase(ctx, memberID)
}

// EstimatePrice asks the AI backends for a price in the configured currency.
func (c *Client) EstimatePrice(ctx context.Context, text string) (int64, error) {
	return c.app.Appraisal.Estimate(ctx, text)
}

// Weights returns the current scoring weights.
func (c *Client) Weights() Weights {
	return fromInternalWeights(c.app.Weights.Load())
}

// SetWeights validates and swaps in new scoring weights. Invalid weights
// leave the current ones in place.
func (c *Client) SetWeights(w Weights) error {
	return c.app.Weights.Swap(toInternalWeights(w), scoringuc.SourceAPI)
}

// ReloadWeights re-reads the configured weights file.
func (c *Client) ReloadWeights() error {
	path := c.app.Config.Ranking.WeightsFile
	if path == "" {
		return errors.New("tradematch: no weights file configured (use WithWeightsFile)")
	}
	return c.app.Weights.ReloadFile(path)
}

// Health checks the stores and the AI backends.
func (c *Client) Health(ctx context.Context) HealthReport {
	return fromInternalHealth(c.app.Health.Check(ctx))
}

// Budgets reports token usage of every AI backend that has a budget configured.
func (c *Client) Budgets() []BudgetUsage {
	return fromInternalBudgets(c.app.Budgets.Usage())
}

func (c *Client) interaction(memberID, itemID, category string, typ dominter.Type) error {
	if memberID == "" || itemID == "" || category == "" {
		return fmt.Errorf("%w: member id, item id and category are required", ErrInvalidRequest)
	}
	return c.publisher.Publish(queue.TopicInteraction, queue.InteractionEvent{
		MemberID:   memberID,
		ItemID:     itemID,
		Category:   category,
		Type:       typ,
		OccurredAt: c.now().UTC(),
	})
}

func (c *Client) paging(page, size int) (ranking.Paging, error) {
	r := c.app.Config.Ranking
	return ranking.NewPaging(page, size, r.DefaultPageSize, r.MaxPageSize)
}
