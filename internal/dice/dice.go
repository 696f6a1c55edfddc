// Package dice implements the seeded dice roller shared by combat, spawning and
// the world simulator.
//
// A Roller is deterministic for a given seed: two rollers built from the same
// seed produce the same sequence. Rollers are safe for concurrent use, but
// callers that need reproducible sequences should own a dedicated Roller.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// ErrInvalidNotation indicates a dice expression that does not match XdY±Z.
var ErrInvalidNotation = errors.New("dice notation must look like XdY, XdY+Z or XdY-Z")

// CriticalThreshold is the lowest natural d20 that counts as a critical.
const CriticalThreshold = 18

// Bounds of a notation.
const (
	MaxDice     = 1000
	MaxSides    = 1000
	MaxModifier = 100000
)

var notation = regexp.MustCompile(`^(\d*)d(\d+)(?:([+-])(\d+))?$`)

// Roll is the result of evaluating a dice expression.
type Roll struct {
	Notation string
	Results  []int
	Modifier int
	Total    int
}

// Check is the result of a skill check or saving throw.
type Check struct {
	Natural int
	Total   int
	DC      int
	Passed  bool
}

// Roller is a seeded pseudo-random source with dice helpers.
type Roller struct {
	mu   sync.Mutex
	seed int64
	src  *rand.Rand
	pos  int64
}

// New returns a roller seeded with seed.
func New(seed int64) *Roller {
	return &Roller{seed: seed, src: rand.New(rand.NewSource(seed))}
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Derive returns a new roller whose seed mixes this roller's seed with salt.
// It is used to get independent, reproducible streams per call site.
func Derive(seed, salt int64) *Roller {
	x := uint64(seed) ^ (uint64(salt) * 0x9E3779B97F4A7C15)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	return New(int64(x))
}

// Seed returns the seed the roller was built from.
func (r *Roller) Seed() int64 { return r.seed }

// Position returns the number of draws made so far.
func (r *Roller) Position() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// Intn returns a value in [0, n). n <= 0 returns 0.
func (r *Roller) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos++
	return r.src.Intn(n)
}

// Float returns a value in [0, 1).
func (r *Roller) Float() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos++
	return r.src.Float64()
}

// Chance reports whether a bernoulli trial with probability p succeeds.
func (r *Roller) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.Float() < p
}

// Between returns an integer in [lo, hi]. Reversed bounds are swapped.
func (r *Roller) Between(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + r.Intn(hi-lo+1)
}

// Uniform returns a float in [lo, hi).
func (r *Roller) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float()
}

// Die rolls a single die with the given number of sides.
func (r *Roller) Die(sides int) int {
	if sides < 1 {
		return 0
	}
	return r.Intn(sides) + 1
}

// D20 rolls a twenty-sided die.
func (r *Roller) D20() int { return r.Die(20) }

// Roll evaluates a notation such as "2d6+3". "d20" is read as "1d20".
func (r *Roller) Roll(expr string) (Roll, error) {
	count, sides, mod, err := Parse(expr)
	if err != nil {
		return Roll{}, err
	}
	out := Roll{Notation: expr, Modifier: mod, Results: make([]int, count)}
	for i := range out.Results {
		out.Results[i] = r.Die(sides)
		out.Total += out.Results[i]
	}
	out.Total += mod
	return out, nil
}

// Parse splits a notation into count, sides and modifier. Counts, sides and
// modifiers above MaxDice, MaxSides and MaxModifier are rejected.
func Parse(expr string) (count, sides, mod int, err error) {
	bad := func() (int, int, int, error) {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidNotation, expr)
	}
	m := notation.FindStringSubmatch(strings.ToLower(strings.ReplaceAll(expr, " ", "")))
	if m == nil {
		return bad()
	}
	count = 1
	if m[1] != "" {
		if count, err = strconv.Atoi(m[1]); err != nil {
			return bad()
		}
	}
	if sides, err = strconv.Atoi(m[2]); err != nil {
		return bad()
	}
	if count < 1 || count > MaxDice || sides < 1 || sides > MaxSides {
		return bad()
	}
	if m[3] != "" {
		if mod, err = strconv.Atoi(m[4]); err != nil || mod > MaxModifier {
			return bad()
		}
		if m[3] == "-" {
			mod = -mod
		}
	}
	return count, sides, mod, nil
}

// Attack returns d20 + power.
func (r *Roller) Attack(power int) int { return r.D20() + power }

// Defense returns d20 + power.
func (r *Roller) Defense(power int) int { return r.D20() + power }

// Initiative returns d20 + speed modifier.
func (r *Roller) Initiative(speed int) int { return r.D20() + speed }

// SkillCheck rolls d20 + bonus against dc.
func (r *Roller) SkillCheck(bonus, dc int) Check {
	n := r.D20()
	return Check{Natural: n, Total: n + bonus, DC: dc, Passed: n+bonus >= dc}
}

// SavingThrow is a skill check phrased for resisting effects.
func (r *Roller) SavingThrow(bonus, dc int) Check { return r.SkillCheck(bonus, dc) }

// Damage rolls a damage expression plus bonus, clamped at zero.
func (r *Roller) Damage(expr string, bonus int) (int, error) {
	roll, err := r.Roll(expr)
	if err != nil {
		return 0, err
	}
	return max(0, roll.Total+bonus), nil
}

// Critical rolls a d20 and reports whether it reached CriticalThreshold.
func (r *Roller) Critical() bool { return r.D20() >= CriticalThreshold }

// Advantage rolls 2d20, keeps the higher, and adds mod.
func (r *Roller) Advantage(mod int) int {
	return max(r.D20(), r.D20()) + mod
}

// Disadvantage rolls 2d20, keeps the lower, and adds mod.
func (r *Roller) Disadvantage(mod int) int {
	return min(r.D20(), r.D20()) + mod
}

// Percentile returns a value in [0, 99].
func (r *Roller) Percentile() int { return r.Intn(100) }

// WeightedIndex picks an index with probability proportional to its weight.
// Non-positive weights never win. It returns -1 when no weight is positive.
func (r *Roller) WeightedIndex(weights []int) int {
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return -1
	}
	roll := r.Intn(total)
	acc := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if roll < acc {
			return i
		}
	}
	return len(weights) - 1
}

// Pick returns a uniformly chosen element of items. It panics on an empty slice.
func Pick[T any](r *Roller, items []T) T {
	return items[r.Intn(len(items))]
}
