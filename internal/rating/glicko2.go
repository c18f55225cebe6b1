package rating

import (
	"errors"
	"fmt"
	"math"
)

// Defaults for a player with no rated games in a pool.
const (
	DefaultRating     = 1500.0
	DefaultRD         = 350.0
	DefaultVolatility = 0.06
)

// Solver defaults.
const (
	DefaultTau           = 0.5
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 100
)

const (
	glickoScale = 173.7178

	// RD and volatility never drop below these floors.
	minDeviation  = 1e-4
	minVolatility = 1e-9
)

// q is the Glicko conversion factor ln(10)/400.
var q = math.Ln10 / 400

// ErrNoConvergence is returned when the volatility root-find exceeds its
// iteration cap.
var ErrNoConvergence = errors.New("glicko2: volatility did not converge")

// State is a player's public-scale Glicko-2 state.
type State struct {
	Rating     float64
	RD         float64
	Volatility float64
}

// DefaultState returns the state of an unseen player.
func DefaultState() State {
	return State{Rating: DefaultRating, RD: DefaultRD, Volatility: DefaultVolatility}
}

// Outcome is one game against an opponent. Score is 1 for a win, 0.5 for a
// draw and 0 for a loss.
type Outcome struct {
	Opponent State
	Score    float64
}

// Solver holds the system constants of the rating update.
type Solver struct {
	Tau           float64
	Tolerance     float64
	MaxIterations int
}

// DefaultSolver returns tau=0.5, tolerance 1e-6 and a 100 iteration cap.
func DefaultSolver() Solver {
	return Solver{Tau: DefaultTau, Tolerance: DefaultTolerance, MaxIterations: DefaultMaxIterations}
}

func (s Solver) normalized() Solver {
	if s.Tau <= 0 {
		s.Tau = DefaultTau
	}
	if s.Tolerance <= 0 {
		s.Tolerance = DefaultTolerance
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	return s
}

// UpdateOne applies a single game against opponent.
func (s Solver) UpdateOne(player, opponent State, score float64) (State, error) {
	return s.Update(player, []Outcome{{Opponent: opponent, Score: score}})
}

// Update applies a rating period. With no outcomes only the deviation decays.
func (s Solver) Update(player State, outcomes []Outcome) (State, error) {
	if len(outcomes) == 0 {
		return Decay(player), nil
	}
	s = s.normalized()

	mu, phi := toGlicko2(player.Rating, player.RD)

	var invV, sum float64
	for _, o := range outcomes {
		muJ, phiJ := toGlicko2(o.Opponent.Rating, o.Opponent.RD)
		gJ := g(phiJ)
		e := expected(mu, muJ, gJ)
		invV += gJ * gJ * e * (1 - e)
		sum += gJ * (o.Score - e)
	}
	v := 1 / invV
	delta := v * sum

	sigma, err := s.Volatility(player.Volatility, phi, v, delta)
	if err != nil {
		return player, err
	}

	phiStar := math.Sqrt(phi*phi + sigma*sigma)
	newPhi := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	newMu := mu + newPhi*newPhi*sum

	rating, rd := fromGlicko2(newMu, newPhi)
	next := State{
		Rating:     rating,
		RD:         math.Max(rd, minDeviation),
		Volatility: math.Max(sigma, minVolatility),
	}
	if math.IsNaN(next.Rating) || math.IsNaN(next.RD) {
		return player, fmt.Errorf("%w: non-finite result", ErrNoConvergence)
	}
	return next, nil
}

// Decay grows RD for a period without games. Rating and volatility are kept.
func Decay(player State) State {
	mu, phi := toGlicko2(player.Rating, player.RD)
	phiStar := math.Sqrt(phi*phi + player.Volatility*player.Volatility)
	rating, rd := fromGlicko2(mu, phiStar)
	return State{Rating: rating, RD: rd, Volatility: player.Volatility}
}

// Volatility solves for the new volatility with the Illinois variant of
// regula falsi.
func (s Solver) Volatility(sigma, phi, v, delta float64) (float64, error) {
	s = s.normalized()
	tau2 := s.Tau * s.Tau
	a := math.Log(sigma * sigma)

	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi*phi + v + ex
		return ex*(delta*delta-phi*phi-v-ex)/(2*d*d) - (x-a)/tau2
	}

	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a-k*s.Tau) < 0 {
			k++
			if int(k) > s.MaxIterations {
				return 0, fmt.Errorf("%w: no bracket after %d steps", ErrNoConvergence, s.MaxIterations)
			}
		}
		B = a - k*s.Tau
	}

	fA, fB := f(A), f(B)
	for i := 0; math.Abs(B-A) > s.Tolerance; i++ {
		if i >= s.MaxIterations {
			return 0, fmt.Errorf("%w: %d iterations", ErrNoConvergence, s.MaxIterations)
		}
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if math.IsNaN(C) || math.IsNaN(fC) || math.IsInf(fC, 0) {
			return 0, fmt.Errorf("%w: non-finite iterate", ErrNoConvergence)
		}
		if fC*fB <= 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}

	return math.Exp(A / 2), nil
}

func toGlicko2(rating, rd float64) (mu, phi float64) {
	return (rating - DefaultRating) / glickoScale, rd / glickoScale
}

func fromGlicko2(mu, phi float64) (rating, rd float64) {
	return glickoScale*mu + DefaultRating, glickoScale * phi
}

func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*q*q*phi*phi/(math.Pi*math.Pi))
}

func expected(mu, muJ, gJ float64) float64 {
	return 1 / (1 + math.Exp(-gJ*(mu-muJ)))
}
