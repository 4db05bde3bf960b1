package observer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/airblackbox/runtime-aibom-emitter/internal/emission"
	"github.com/airblackbox/runtime-aibom-emitter/internal/episode"
)

// scriptedSource serves a fixed list of episodes per agent and can be told to
// fail at a given index.
type scriptedSource struct {
	mu       sync.Mutex
	episodes map[string][]*episode.Episode
	failAt   int
	calls    int
}

func (s *scriptedSource) Fetch(_ context.Context, agentID string, index int) (*episode.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt >= 0 && index == s.failAt {
		return nil, fmt.Errorf("%w: connection refused", episode.ErrSourceUnavailable)
	}
	list := s.episodes[agentID]
	if index >= len(list) {
		return nil, episode.ErrEndOfStream
	}
	return list[index], nil
}

func (s *scriptedSource) add(agentID string, ep *episode.Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[agentID] = append(s.episodes[agentID], ep)
}

func newScripted() *scriptedSource {
	return &scriptedSource{episodes: map[string][]*episode.Episode{}, failAt: -1}
}

func act(name string) episode.Activity {
	return episode.Activity{Name: name, Version: "1", Provider: "p"}
}

func TestObserveSimulatedScenario(t *testing.T) {
	obs := New(episode.NewSimulatedSource(5), Config{})
	got, err := obs.ObserveEpisodes(context.Background(), "agent-1", 5)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(got) != 15 {
		t.Fatalf("expected 15 emissions, got %d", len(got))
	}
	s := obs.Summary("agent-1")
	if s.TotalEmissions != 15 {
		t.Errorf("total = %d, want 15", s.TotalEmissions)
	}
	if !reflect.DeepEqual(s.UniqueModels, []string{"GPT-4"}) {
		t.Errorf("unique models = %v", s.UniqueModels)
	}
}

func TestObserveIsIdempotent(t *testing.T) {
	obs := New(episode.NewSimulatedSource(5), Config{})
	ctx := context.Background()
	if _, err := obs.ObserveEpisodes(ctx, "agent-1", 5); err != nil {
		t.Fatal(err)
	}
	for _, limit := range []int{5, 10, 100} {
		again, err := obs.ObserveEpisodes(ctx, "agent-1", limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != 0 {
			t.Fatalf("limit %d: expected no new emissions, got %d", limit, len(again))
		}
	}
	if got := obs.Summary("agent-1").TotalEmissions; got != 15 {
		t.Errorf("total = %d, want 15", got)
	}
}

func TestObserveIncreasingLimitOnlyYieldsUnseen(t *testing.T) {
	obs := New(episode.NewSimulatedSource(5), Config{})
	ctx := context.Background()
	first, _ := obs.ObserveEpisodes(ctx, "agent-1", 2)
	if len(first) != 6 {
		t.Fatalf("first poll = %d, want 6", len(first))
	}
	second, _ := obs.ObserveEpisodes(ctx, "agent-1", 5)
	if len(second) != 9 {
		t.Fatalf("second poll = %d, want 9", len(second))
	}
	for _, e := range second {
		id := e.Metadata["episode_id"]
		if id == "ep-agent-1-0" || id == "ep-agent-1-1" {
			t.Errorf("episode %v re-extracted", id)
		}
	}
}

func TestObserveNewUpstreamEpisodes(t *testing.T) {
	src := newScripted()
	src.add("a", &episode.Episode{ID: "e1", ModelsUsed: []episode.Activity{act("m")}})
	obs := New(src, Config{})
	ctx := context.Background()
	if got, _ := obs.ObserveEpisodes(ctx, "a", 10); len(got) != 1 {
		t.Fatalf("first poll = %d", len(got))
	}
	src.add("a", &episode.Episode{ID: "e2", ToolsInvoked: []episode.Activity{act("t")}})
	got, err := obs.ObserveEpisodes(ctx, "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Metadata["episode_id"] != "e2" {
		t.Fatalf("expected only e2 emissions, got %+v", got)
	}
}

func TestObserveMappingAndOrder(t *testing.T) {
	src := newScripted()
	src.add("a", &episode.Episode{
		ID:           "ep-1",
		ModelsUsed:   []episode.Activity{act("m1"), act("m2")},
		ToolsInvoked: []episode.Activity{act("t1"), act("t2"), act("t3")},
		DataAccessed: []episode.Activity{act("d1")},
	})
	src.add("a", &episode.Episode{ID: "ep-2", DataAccessed: []episode.Activity{act("d2")}})
	obs := New(src, Config{})

	got, err := obs.ObserveEpisodes(context.Background(), "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	wantNames := []string{"m1", "m2", "t1", "t2", "t3", "d1", "d2"}
	wantTypes := []emission.Type{
		emission.ModelUsed, emission.ModelUsed,
		emission.ToolInvoked, emission.ToolInvoked, emission.ToolInvoked,
		emission.DataAccessed, emission.DataAccessed,
	}
	if len(got) != len(wantNames) {
		t.Fatalf("got %d emissions, want %d", len(got), len(wantNames))
	}
	ids := map[string]bool{}
	for i, e := range got {
		if e.ComponentName != wantNames[i] || e.Type != wantTypes[i] {
			t.Errorf("emission %d = %s/%s, want %s/%s", i, e.Type, e.ComponentName, wantTypes[i], wantNames[i])
		}
		if e.AgentID != "a" {
			t.Errorf("emission %d agent = %q", i, e.AgentID)
		}
		if e.ID == "" || ids[e.ID] {
			t.Errorf("emission %d id %q empty or duplicated", i, e.ID)
		}
		ids[e.ID] = true
	}
	for _, e := range got[:6] {
		if e.Metadata["episode_id"] != "ep-1" {
			t.Errorf("episode_id = %v, want ep-1", e.Metadata["episode_id"])
		}
	}
	if got[6].Metadata["episode_id"] != "ep-2" {
		t.Errorf("episode_id = %v, want ep-2", got[6].Metadata["episode_id"])
	}
}

func TestObserveEmptyEpisodeStillMarked(t *testing.T) {
	src := newScripted()
	src.add("a", &episode.Episode{ID: "empty"})
	obs := New(src, Config{})
	got, err := obs.ObserveEpisodes(context.Background(), "a", 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %d, err %v", len(got), err)
	}
	if obs.TrackedEpisodes() != 1 {
		t.Fatalf("expected empty episode to be tracked")
	}
}

func TestObserveZeroLimit(t *testing.T) {
	src := newScripted()
	obs := New(src, Config{})
	got, err := obs.ObserveEpisodes(context.Background(), "a", 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %d, err %v", len(got), err)
	}
	if src.calls != 0 {
		t.Fatalf("source should not be called, got %d calls", src.calls)
	}
}

func TestObserveSourceFailure(t *testing.T) {
	src := newScripted()
	src.add("a", &episode.Episode{ID: "e0", ModelsUsed: []episode.Activity{act("m")}})
	src.add("a", &episode.Episode{ID: "e1", ModelsUsed: []episode.Activity{act("m")}})
	src.failAt = 1
	obs := New(src, Config{})

	got, err := obs.ObserveEpisodes(context.Background(), "a", 5)
	if !errors.Is(err, episode.ErrSourceUnavailable) {
		t.Fatalf("expected source unavailable, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil emissions on failure, got %d", len(got))
	}
	if obs.TrackedEpisodes() != 0 || len(obs.Emissions()) != 0 {
		t.Fatalf("failed poll must not change observer state")
	}

	src.failAt = -1
	retry, err := obs.ObserveEpisodes(context.Background(), "a", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(retry) != 2 || retry[0].Metadata["episode_id"] != "e0" || retry[1].Metadata["episode_id"] != "e1" {
		t.Fatalf("retry should yield e0 and e1, got %+v", retry)
	}
}

func TestSummaryUnknownAgent(t *testing.T) {
	obs := New(episode.NewSimulatedSource(5), Config{})
	s := obs.Summary("ghost")
	if s.TotalEmissions != 0 || len(s.UniqueTools) != 0 {
		t.Fatalf("expected zero summary, got %+v", s)
	}
}

func TestMaxTrackedEpisodesEvictsOldest(t *testing.T) {
	obs := New(episode.NewSimulatedSource(5), Config{MaxTrackedEpisodes: 3})
	if _, err := obs.ObserveEpisodes(context.Background(), "a", 5); err != nil {
		t.Fatal(err)
	}
	if obs.TrackedEpisodes() != 3 {
		t.Fatalf("tracked = %d, want 3", obs.TrackedEpisodes())
	}
	// ep-a-0 and ep-a-1 were forgotten and are re-extracted.
	again, _ := obs.ObserveEpisodes(context.Background(), "a", 2)
	if len(again) != 6 {
		t.Fatalf("expected 6 re-extracted emissions, got %d", len(again))
	}
	if obs.TrackedEpisodes() != 3 {
		t.Fatalf("tracked = %d after re-poll, want 3", obs.TrackedEpisodes())
	}
}

func TestConcurrentPollsDoNotDuplicate(t *testing.T) {
	obs := New(episode.NewSimulatedSource(5), Config{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := obs.ObserveEpisodes(context.Background(), "agent-1", 5)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			total += len(got)
			mu.Unlock()
		}()
	}
	wg.Wait()
	if total != 15 {
		t.Fatalf("expected 15 emissions across all polls, got %d", total)
	}
	if len(obs.Emissions()) != 15 {
		t.Fatalf("log has %d emissions, want 15", len(obs.Emissions()))
	}
}

type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSource) Fetch(ctx context.Context, agentID string, index int) (*episode.Episode, error) {
	if index > 0 {
		return nil, episode.ErrEndOfStream
	}
	s.entered <- struct{}{}
	<-s.release
	return &episode.Episode{ID: "slow", AgentID: agentID, ModelsUsed: []episode.Activity{act("m")}}, nil
}

func TestSummaryDoesNotWaitForFetch(t *testing.T) {
	src := &blockingSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	obs := New(src, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := obs.ObserveEpisodes(context.Background(), "a", 1)
		done <- err
	}()
	<-src.entered

	start := time.Now()
	if s := obs.Summary("a"); s.TotalEmissions != 0 {
		t.Fatalf("summary = %+v", s)
	}
	if n := len(obs.Emissions()); n != 0 {
		t.Fatalf("emissions = %d", n)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("summary took %v while a fetch was blocked", elapsed)
	}

	close(src.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if s := obs.Summary("a"); s.TotalEmissions != 1 {
		t.Fatalf("summary after poll = %+v", s)
	}
}
