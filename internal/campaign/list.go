package campaign

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"daoup/internal/chain"
	"daoup/internal/model"
)

// DefaultFilterDebounce is the delay between the last filter change and refiltering.
const DefaultFilterDebounce = 350 * time.Millisecond

// Loader loads one campaign by address.
type Loader interface {
	Campaign(ctx context.Context, address string) (model.Campaign, error)
}

// AddressSource enumerates campaign addresses.
type AddressSource interface {
	Addresses(ctx context.Context) ([]string, error)
}

// Response is the outcome of loading one address.
type Response struct {
	Address  string
	Campaign *model.Campaign
	Err      error
}

// FetchAll loads every address with at most concurrency requests in flight. A failing
// address never aborts the others; results keep the input order.
func FetchAll(ctx context.Context, loader Loader, addresses []string, concurrency int) []Response {
	if concurrency <= 0 {
		concurrency = 8
	}
	responses := make([]Response, len(addresses))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			c, err := loader.Campaign(ctx, address)
			if err != nil {
				responses[i] = Response{Address: address, Err: err}
				return nil
			}
			responses[i] = Response{Address: address, Campaign: &c}
			return nil
		})
	}
	_ = g.Wait()
	return responses
}

// FromResponses returns the visible campaigns of successful responses.
func FromResponses(responses []Response, includeHidden, includePending bool) []model.Campaign {
	out := make([]model.Campaign, 0, len(responses))
	for _, r := range responses {
		if r.Campaign == nil {
			continue
		}
		if !Visible(*r.Campaign, includeHidden, includePending) {
			continue
		}
		out = append(out, *r.Campaign)
	}
	return out
}

// FirstError picks the error reported for a list: registry, then filter, then the
// first failing address.
func FirstError(registryErr, filterErr error, responses []Response) error {
	if registryErr != nil {
		return registryErr
	}
	if filterErr != nil {
		return filterErr
	}
	for _, r := range responses {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// ErrorMessage renders a load error for display.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrIncompleteState) || errors.Is(err, ErrUnrecognizedStatus) {
		return chain.CodeNotFound.Message()
	}
	return chain.Message(err, nil)
}

// ListOptions selects which campaigns a list shows.
type ListOptions struct {
	IncludeHidden  bool
	IncludePending bool
}

// DefaultListOptions hides hidden campaigns and shows pending ones.
func DefaultListOptions() ListOptions {
	return ListOptions{IncludeHidden: false, IncludePending: true}
}

// ListResult is the observable state of a ListService.
type ListResult struct {
	Campaigns []model.Campaign `json:"campaigns"`
	Error     string           `json:"error,omitempty"`
	Filtering bool             `json:"filtering"`
}

// FilterFunc filters campaigns for a filter string.
type FilterFunc func(ctx context.Context, campaigns []model.Campaign, filter string) ([]model.Campaign, error)

// ListService holds a loaded campaign list and refilters it on input, debounced.
// Only the newest filter run may publish its result.
type ListService struct {
	source      AddressSource
	loader      Loader
	opts        ListOptions
	debounce    time.Duration
	concurrency int
	filterFn    FilterFunc
	logger      *zap.Logger

	mu          sync.Mutex
	timer       *time.Timer
	generation  uint64
	filter      string
	visible     []model.Campaign
	registryErr error
	responseErr error
	filterErr   error
	result      ListResult
	subs        map[int]chan ListResult
	nextSubID   int
	closed      bool
	baseContext context.Context
}

// ListConfig tunes a ListService.
type ListConfig struct {
	Debounce    time.Duration
	Concurrency int
	// Filter replaces FilterCampaigns; used to simulate slow filtering.
	Filter FilterFunc
}

// NewListService creates a list service. Call Load before filtering.
func NewListService(source AddressSource, loader Loader, opts ListOptions, cfg ListConfig, logger *zap.Logger) *ListService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultFilterDebounce
	}
	if cfg.Filter == nil {
		cfg.Filter = func(ctx context.Context, campaigns []model.Campaign, filter string) ([]model.Campaign, error) {
			return FilterCampaigns(campaigns, filter), nil
		}
	}
	return &ListService{
		source:      source,
		loader:      loader,
		opts:        opts,
		debounce:    cfg.Debounce,
		concurrency: cfg.Concurrency,
		filterFn:    cfg.Filter,
		logger:      logger,
		subs:        make(map[int]chan ListResult),
		baseContext: context.Background(),
	}
}

// Load fetches the registry and every campaign, then applies the current filter
// immediately.
func (s *ListService) Load(ctx context.Context) error {
	addresses, registryErr := s.source.Addresses(ctx)
	var responses []Response
	if registryErr == nil {
		responses = FetchAll(ctx, s.loader, addresses, s.concurrency)
	}
	for _, r := range responses {
		if r.Err != nil {
			s.logger.Warn("campaign load failed", zap.String("campaign", r.Address), zap.Error(r.Err))
		}
	}

	visible := FromResponses(responses, s.opts.IncludeHidden, s.opts.IncludePending)

	s.mu.Lock()
	s.visible = visible
	s.registryErr = registryErr
	s.responseErr = FirstError(nil, nil, responses)
	s.filterErr = nil
	filter := s.filter
	s.mu.Unlock()

	s.runFilter(ctx, filter)
	return registryErr
}

// SetFilter schedules a refilter after the debounce delay, cancelling any pending one.
func (s *ListService) SetFilter(filter string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.filter = filter
	if s.timer != nil {
		s.timer.Stop()
	}
	s.result.Filtering = true
	s.timer = time.AfterFunc(s.debounce, func() {
		s.runFilter(s.baseContext, filter)
	})
	s.publishLocked()
	s.mu.Unlock()
}

func (s *ListService) runFilter(ctx context.Context, filter string) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	campaigns := append([]model.Campaign(nil), s.visible...)
	s.result.Filtering = true
	s.mu.Unlock()

	filtered, err := s.filterFn(ctx, campaigns, filter)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding stale filter result", zap.Uint64("generation", gen))
		return
	}
	s.filterErr = err
	if err == nil {
		s.result.Campaigns = filtered
	}
	s.result.Filtering = false
	s.result.Error = ErrorMessage(FirstError(s.registryErr, s.filterErr, []Response{{Err: s.responseErr}}))
	s.publishLocked()
	s.mu.Unlock()
}

// Generation returns the number of filter runs started.
func (s *ListService) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Result returns the current list state.
func (s *ListService) Result() ListResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ListService) snapshotLocked() ListResult {
	return ListResult{
		Campaigns: append([]model.Campaign(nil), s.result.Campaigns...),
		Error:     s.result.Error,
		Filtering: s.result.Filtering,
	}
}

// Subscribe returns a channel receiving every published result; slow readers only
// see the latest.
func (s *ListService) Subscribe() (<-chan ListResult, func()) {
	ch := make(chan ListResult, 1)
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *ListService) publishLocked() {
	result := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- result:
		default:
		}
	}
}

// Close stops any pending filter run.
func (s *ListService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
