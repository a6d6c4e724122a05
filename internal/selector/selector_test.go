package selector

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/avisly/playengine/internal/model"
)

// scriptedSource replays fixed values
type scriptedSource struct {
	float float64
	ints  []int
	calls []int
}

func (s *scriptedSource) Float64() float64 { return s.float }

func (s *scriptedSource) IntN(n int) int {
	s.calls = append(s.calls, n)
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v
}

func reward(label string, prize bool) model.Reward {
	return model.Reward{ID: uuid.New(), Label: label, IsPrize: prize}
}

func TestPickReturnsWheelIndex(t *testing.T) {
	rewards := []model.Reward{
		reward("Merci", false),
		reward("Café offert", true),
		reward("Merci encore", false),
		reward("Dessert offert", true),
	}

	tests := []struct {
		name      string
		float     float64
		pick      int
		wantIndex int
		wantWon   bool
		wantN     int
	}{
		{name: "win second prize", float: 0.10, pick: 1, wantIndex: 3, wantWon: true, wantN: 2},
		{name: "win first prize", float: 0.69, pick: 0, wantIndex: 1, wantWon: true, wantN: 2},
		{name: "lose first filler", float: 0.70, pick: 0, wantIndex: 0, wantWon: false, wantN: 2},
		{name: "lose second filler", float: 0.99, pick: 1, wantIndex: 2, wantWon: false, wantN: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{float: tt.float, ints: []int{tt.pick}}
			res, err := Pick(70, rewards, src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Index != tt.wantIndex {
				t.Errorf("expected index %d, got %d", tt.wantIndex, res.Index)
			}
			if res.Reward.ID != rewards[tt.wantIndex].ID {
				t.Errorf("reward does not match index")
			}
			if res.Won != tt.wantWon {
				t.Errorf("expected won=%v, got %v", tt.wantWon, res.Won)
			}
			if len(src.calls) != 1 || src.calls[0] != tt.wantN {
				t.Errorf("expected one draw over %d members, got %v", tt.wantN, src.calls)
			}
			if res.FellBack {
				t.Error("unexpected fallback")
			}
		})
	}
}

func TestPickFallsBackOnEmptyBucket(t *testing.T) {
	prizesOnly := []model.Reward{reward("A", true), reward("B", true), reward("C", true)}

	src := &scriptedSource{float: 0.95, ints: []int{2}}
	res, err := Pick(10, prizesOnly, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.FellBack || res.Won {
		t.Errorf("expected a losing draw that fell back, got %+v", res)
	}
	if res.Index != 2 || src.calls[0] != 3 {
		t.Errorf("expected draw over full list, got index %d calls %v", res.Index, src.calls)
	}
	if res.Outcome() != "fallback" {
		t.Errorf("expected fallback outcome, got %s", res.Outcome())
	}
}

func TestPickNeverFailsWithNonEmptyList(t *testing.T) {
	prizesOnly := []model.Reward{reward("A", true), reward("B", true)}
	src := NewSeededSource(7, 11)
	for i := 0; i < 10000; i++ {
		res, err := Pick(10, prizesOnly, src)
		if err != nil {
			t.Fatalf("spin %d failed: %v", i, err)
		}
		if res.Index < 0 || res.Index >= len(prizesOnly) {
			t.Fatalf("spin %d returned out-of-range index %d", i, res.Index)
		}
	}
}

func TestPickNoRewards(t *testing.T) {
	src := &scriptedSource{}
	_, err := Pick(50, nil, src)
	if !errors.Is(err, ErrNoRewards) {
		t.Fatalf("expected ErrNoRewards, got %v", err)
	}
	if len(src.calls) != 0 {
		t.Error("expected no random draw before failing")
	}
}

func TestPickClampsProbability(t *testing.T) {
	rewards := []model.Reward{reward("Prize", true), reward("Filler", false)}

	tests := []struct {
		name  string
		p     int
		float float64
		want  bool
	}{
		{name: "above 100 always wins", p: 150, float: 0.999, want: true},
		{name: "exactly 100 always wins", p: 100, float: 0.999, want: true},
		{name: "zero never wins", p: 0, float: 0.0, want: false},
		{name: "negative never wins", p: -5, float: 0.0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Pick(tt.p, rewards, &scriptedSource{float: tt.float, ints: []int{0}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Won != tt.want {
				t.Errorf("expected won=%v, got %v", tt.want, res.Won)
			}
		})
	}
}

func TestWinRateConverges(t *testing.T) {
	rewards := []model.Reward{
		reward("Café offert", true),
		reward("Merci", false),
		reward("Dessert", true),
		reward("À bientôt", false),
	}

	const spins = 100000
	src := NewSeededSource(42, 1337)
	prizes := 0
	for i := 0; i < spins; i++ {
		res, err := Pick(70, rewards, src)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Reward.IsPrize {
			prizes++
		}
	}

	rate := float64(prizes) / spins
	if math.Abs(rate-0.70) > 0.02 {
		t.Errorf("expected prize rate near 0.70, got %.4f", rate)
	}
}
