// Package selector draws the reward of a spin.
//
// A draw first decides win or lose against the campaign's win probability,
// then picks uniformly inside the matching bucket of rewards. An empty
// bucket falls back to the full list, so a spin never fails only because a
// campaign has no prize or no filler rewards.
package selector

import (
	"errors"
	"math/rand/v2"

	"github.com/samber/lo"

	"github.com/avisly/playengine/internal/model"
)

// ErrNoRewards is returned when a campaign has no rewards at all
var ErrNoRewards = errors.New("campaign has no rewards")

// Source is the randomness a draw consumes. *rand.Rand satisfies it.
type Source interface {
	// Float64 returns a value in [0.0, 1.0)
	Float64() float64
	// IntN returns a value in [0, n)
	IntN(n int) int
}

// globalSource uses the goroutine-safe top-level math/rand/v2 generator
type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }
func (globalSource) IntN(n int) int   { return rand.IntN(n) }

// NewSource returns a Source safe for concurrent use
func NewSource() Source {
	return globalSource{}
}

// NewSeededSource returns a deterministic Source. Not safe for concurrent use.
func NewSeededSource(seed1, seed2 uint64) Source {
	return rand.New(rand.NewPCG(seed1, seed2))
}

// Result is the outcome of a draw
type Result struct {
	// Index is the position of Reward in the unfiltered input slice
	Index  int
	Reward model.Reward
	// Won is the outcome of the win/lose draw, not whether Reward is a prize
	Won bool
	// FellBack is set when the selected bucket was empty
	FellBack bool
}

// Pick selects a reward. winProbability is a percentage; values outside
// [0, 100] are clamped.
func Pick(winProbability int, rewards []model.Reward, src Source) (Result, error) {
	if len(rewards) == 0 {
		return Result{}, ErrNoRewards
	}

	p := float64(min(max(winProbability, 0), 100))
	won := src.Float64()*100 < p

	bucket := lo.Filter(lo.Range(len(rewards)), func(i int, _ int) bool {
		return rewards[i].IsPrize == won
	})

	fellBack := false
	if len(bucket) == 0 {
		bucket = lo.Range(len(rewards))
		fellBack = true
	}

	index := bucket[src.IntN(len(bucket))]
	return Result{
		Index:    index,
		Reward:   rewards[index],
		Won:      won,
		FellBack: fellBack,
	}, nil
}

// Outcome labels a result for metrics
func (r Result) Outcome() string {
	switch {
	case r.FellBack:
		return "fallback"
	case r.Won:
		return "won"
	default:
		return "lost"
	}
}
