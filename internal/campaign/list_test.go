package campaign

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"daoup/internal/model"
)

type staticSource struct {
	addresses []string
	err       error
}

func (s staticSource) Addresses(ctx context.Context) ([]string, error) {
	return s.addresses, s.err
}

type mapLoader struct {
	campaigns map[string]model.Campaign
	errs      map[string]error
	calls     int32
}

func (l *mapLoader) Campaign(ctx context.Context, address string) (model.Campaign, error) {
	atomic.AddInt32(&l.calls, 1)
	if err := l.errs[address]; err != nil {
		return model.Campaign{}, err
	}
	return l.campaigns[address], nil
}

func fixtureLoader() *mapLoader {
	l := &mapLoader{campaigns: make(map[string]model.Campaign), errs: make(map[string]error)}
	for _, c := range campaignsFixture() {
		l.campaigns[c.Address] = c
	}
	return l
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	loader := fixtureLoader()
	loader.errs["b"] = ErrIncompleteState

	responses := FetchAll(context.Background(), loader, []string{"a", "b", "d"}, 2)
	if len(responses) != 3 {
		t.Fatalf("responses = %d", len(responses))
	}
	if responses[0].Campaign == nil || responses[2].Campaign == nil {
		t.Fatalf("healthy addresses failed: %+v", responses)
	}
	if responses[1].Campaign != nil || !errors.Is(responses[1].Err, ErrIncompleteState) {
		t.Fatalf("failing address = %+v", responses[1])
	}

	visible := addresses(FromResponses(responses, false, true))
	if len(visible) != 2 || visible[0] != "a" || visible[1] != "d" {
		t.Fatalf("visible = %v", visible)
	}
	if got := addresses(FromResponses(responses, false, false)); len(got) != 1 || got[0] != "a" {
		t.Fatalf("without pending = %v", got)
	}
}

func TestFirstErrorOrder(t *testing.T) {
	registryErr := errors.New("registry")
	filterErr := errors.New("filter")
	responseErr := errors.New("response")
	responses := []Response{{Address: "a"}, {Address: "b", Err: responseErr}}

	if err := FirstError(registryErr, filterErr, responses); err != registryErr {
		t.Fatalf("got %v, want registry", err)
	}
	if err := FirstError(nil, filterErr, responses); err != filterErr {
		t.Fatalf("got %v, want filter", err)
	}
	if err := FirstError(nil, nil, responses); err != responseErr {
		t.Fatalf("got %v, want response", err)
	}
	if err := FirstError(nil, nil, responses[:1]); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}

func TestListServiceLoad(t *testing.T) {
	loader := fixtureLoader()
	loader.errs["e"] = ErrUnrecognizedStatus
	source := staticSource{addresses: []string{"a", "b", "c", "d", "e"}}

	svc := NewListService(source, loader, DefaultListOptions(), ListConfig{Debounce: time.Millisecond}, nil)
	defer svc.Close()
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	result := svc.Result()
	if got := addresses(result.Campaigns); len(got) != 3 {
		t.Fatalf("campaigns = %v", got)
	}
	if result.Error != "Not found." {
		t.Fatalf("error = %q", result.Error)
	}
	if result.Filtering {
		t.Fatalf("still filtering after load")
	}
}

func TestListServiceRegistryError(t *testing.T) {
	registryErr := errors.New("rpc down")
	svc := NewListService(staticSource{err: registryErr}, fixtureLoader(), DefaultListOptions(), ListConfig{}, nil)
	defer svc.Close()

	if err := svc.Load(context.Background()); err != registryErr {
		t.Fatalf("Load err = %v", err)
	}
	if got := svc.Result().Error; got != "rpc down" {
		t.Fatalf("error = %q", got)
	}
}

func TestListServiceDebounceDiscardsStaleResults(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var filters []string

	slowFilter := func(ctx context.Context, campaigns []model.Campaign, filter string) ([]model.Campaign, error) {
		mu.Lock()
		filters = append(filters, filter)
		mu.Unlock()
		if filter == "garden" {
			<-release
		}
		return FilterCampaigns(campaigns, filter), nil
	}

	source := staticSource{addresses: []string{"a", "b", "d"}}
	svc := NewListService(source, fixtureLoader(), DefaultListOptions(), ListConfig{Debounce: 20 * time.Millisecond, Filter: slowFilter}, nil)
	defer svc.Close()
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates, cancel := svc.Subscribe()
	defer cancel()

	// Rapid changes inside the debounce window collapse into the last one.
	svc.SetFilter("g")
	svc.SetFilter("ga")
	svc.SetFilter("garden")
	if !svc.Result().Filtering {
		t.Fatalf("expected filtering flag while debounced")
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(filters) == 2
	})

	// A newer filter starts while "garden" is still running.
	svc.SetFilter("status:funded")
	waitFor(t, func() bool {
		r := svc.Result()
		return !r.Filtering && len(r.Campaigns) == 1 && r.Campaigns[0].Address == "b"
	})

	close(release)
	time.Sleep(20 * time.Millisecond)

	result := svc.Result()
	if len(result.Campaigns) != 1 || result.Campaigns[0].Address != "b" {
		t.Fatalf("stale result published: %v", addresses(result.Campaigns))
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"", "garden", "status:funded"}
	if len(filters) != len(want) {
		t.Fatalf("filter runs = %v, want %v", filters, want)
	}
	for i := range want {
		if filters[i] != want[i] {
			t.Fatalf("filter runs = %v, want %v", filters, want)
		}
	}

	select {
	case <-updates:
	default:
		t.Fatalf("no update published")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
