package app

import (
	"context"
	"log"
	"strconv"
	"strings"

	"prodplan/api/internal/config"
	"prodplan/api/internal/search"
	"prodplan/api/internal/store"
)

// headingIndexer pushes heading changes into the search index. Implemented by
// search.Service; nil disables indexing.
type headingIndexer interface {
	IndexHeading(rec search.HeadingRecord)
	DeleteHeading(id int64)
	Search(q search.Query) search.Response
}

// activityFeed receives committed activity entries, best effort. Implemented
// by feed.Publisher; nil disables the feed.
type activityFeed interface {
	Publish(ctx context.Context, entry store.ActivityEntry)
}

type Service struct {
	cfg    config.Config
	store  store.Store
	search headingIndexer
	feed   activityFeed
}

func New(cfg config.Config, dataStore store.Store, searchService headingIndexer, activity activityFeed) *Service {
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		search: searchService,
		feed:   activity,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func fmt64(v int64) string {
	return strconv.FormatInt(v, 10)
}

// actorPtr normalizes the opaque actor string: blank means unattributed and is
// stored as NULL so audit queries can tell system writes apart.
func actorPtr(actor string) *string {
	trimmed := strings.TrimSpace(actor)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// logActivity writes the entry inside the current transaction. The caller
// pushes it to the feed after commit via publishActivity.
func (s *Service) logActivity(ctx context.Context, tx store.Store, entry store.ActivityEntry) error {
	return tx.InsertActivity(ctx, entry)
}

// publishActivity fans a committed entry out to the recent-activity feed.
// Failures are logged, never surfaced: the store row is the source of truth.
func (s *Service) publishActivity(ctx context.Context, entry store.ActivityEntry) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(ctx, entry)
}

func (s *Service) indexHeading(h store.Heading) {
	if s.search == nil {
		return
	}
	s.search.IndexHeading(search.HeadingRecord{
		ID:        h.ID,
		AccountID: h.AccountID,
		Name:      h.Name,
		Families:  h.Families,
		Status:    h.Status,
		Stage:     h.WorkflowStage,
	})
}

func (s *Service) dropHeadingFromIndex(id int64) {
	if s.search == nil {
		return
	}
	s.search.DeleteHeading(id)
}

// SearchHeadings runs a full-text query scoped to the account.
func (s *Service) SearchHeadings(ctx context.Context, accountID int64, text string, limit int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(search.Query{Text: text, AccountID: accountID, Limit: limit})
}

// RecentActivity lists the newest activity rows for the account.
func (s *Service) RecentActivity(ctx context.Context, accountID int64, limit int) ([]store.ActivityEntry, error) {
	return s.store.ListActivity(ctx, accountID, limit)
}

// withIdentifierRetry runs op once and, if the store reports a unique-constraint
// collision (a concurrent allocator race), once more in a fresh transaction.
func (s *Service) withIdentifierRetry(op func() error) error {
	err := op()
	if err == nil || !store.IsUniqueViolation(err) {
		return err
	}
	log.Printf("app: identifier conflict, retrying allocation: %v", err)
	if err := op(); err != nil {
		if store.IsUniqueViolation(err) {
			return errIdentifierConflict()
		}
		return err
	}
	return nil
}
