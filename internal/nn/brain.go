// Package nn implements a deep Q-learning brain on top of go-deep.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	deep "github.com/patrikeh/go-deep"
	"github.com/patrikeh/go-deep/training"
	"gonum.org/v1/gonum/floats"

	"tileagent/internal/agent"
	"tileagent/internal/config"
	"tileagent/internal/observe"
)

// tileScale maps log2 of a tile into [0, 1] for boards up to 65536
const tileScale = 16.0

const lossWindow = 100

// Brain picks moves epsilon-greedily from a Q-value network and trains it
// on experiences replayed from memory.
//
// The network input is the current state followed by TemporalWindow
// previous states, each paired with a one-hot encoding of the action taken
// from it.
type Brain struct {
	mu sync.Mutex

	cfg        config.ModelConfig
	numStates  int
	netInputs  int
	windowSize int

	net     *deep.Neural
	trainer *batchSGD
	memory  *Memory
	rng     *rand.Rand

	learning      bool
	age           int
	forwardPasses int
	epsilon       float64

	stateWindow  [][]float64
	actionWindow []agent.Action
	rewardWindow []float64
	netWindow    [][]float64

	losses []float64
}

// NewBrain builds an untrained brain for observations of numStates cells
func NewBrain(cfg config.ModelConfig, numStates int, seed int64) (*Brain, error) {
	if numStates < 1 {
		return nil, fmt.Errorf("nn: numStates must be positive, got %d", numStates)
	}
	netInputs := numStates*(cfg.TemporalWindow+1) + agent.NumActions*cfg.TemporalWindow
	layout := append(append([]int(nil), cfg.HiddenLayers...), agent.NumActions)

	net := deep.NewNeural(&deep.Config{
		Inputs:     netInputs,
		Layout:     layout,
		Activation: deep.ActivationReLU,
		Mode:       deep.ModeRegression,
		Loss:       deep.LossMeanSquared,
		Weight:     deep.NewNormal(0.1, 0.0),
		Bias:       true,
	})
	return newBrain(cfg, numStates, net, seed), nil
}

func newBrain(cfg config.ModelConfig, numStates int, net *deep.Neural, seed int64) *Brain {
	windowSize := cfg.TemporalWindow
	if windowSize < 2 {
		windowSize = 2
	}
	rng := rand.New(rand.NewSource(seed))
	b := &Brain{
		cfg:        cfg,
		numStates:  numStates,
		netInputs:  net.Config.Inputs,
		windowSize: windowSize,
		net:        net,
		trainer:    newBatchSGD(net, training.NewSGD(cfg.LearningRate, cfg.Momentum, 0, false)),
		memory:     NewMemory(cfg.ExperienceSize, rng),
		rng:        rng,
		learning:   true,
		epsilon:    1,
	}
	for i := 0; i < windowSize; i++ {
		b.stateWindow = append(b.stateWindow, make([]float64, numStates))
		b.actionWindow = append(b.actionWindow, 0)
		b.rewardWindow = append(b.rewardWindow, 0)
		b.netWindow = append(b.netWindow, make([]float64, b.netInputs))
	}
	return b
}

// NewBrainFactory returns a factory whose brains are seeded seed, seed+1, ...
func NewBrainFactory(seed int64) agent.ModelFactory {
	var mu sync.Mutex
	next := seed
	return func(cfg config.ModelConfig, numInputs int) (agent.Model, error) {
		mu.Lock()
		s := next
		next++
		mu.Unlock()
		return NewBrain(cfg, numInputs, s)
	}
}

// Forward returns the next move for obs
func (b *Brain) Forward(obs observe.Observation) (agent.Action, error) {
	if len(obs) != b.numStates {
		return 0, fmt.Errorf("nn: observation has %d cells, want %d", len(obs), b.numStates)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.forwardPasses++
	state := encode(obs)

	var netInput []float64
	var action agent.Action
	if b.forwardPasses > b.cfg.TemporalWindow {
		netInput = b.netInput(state)
		if b.learning {
			b.epsilon = b.annealedEpsilon()
		} else {
			b.epsilon = b.cfg.EpsilonTestTime
		}
		if b.rng.Float64() < b.epsilon {
			action = b.randomAction()
		} else {
			action, _ = b.policy(netInput)
		}
	} else {
		// not enough history for a full input yet
		netInput = make([]float64, b.netInputs)
		action = b.randomAction()
	}

	b.netWindow = shift(b.netWindow, netInput)
	b.stateWindow = shift(b.stateWindow, state)
	copy(b.actionWindow, b.actionWindow[1:])
	b.actionWindow[len(b.actionWindow)-1] = action
	return action, nil
}

// Backward stores the reward for the last action and, once enough
// experience has accumulated, trains on one sampled batch
func (b *Brain) Backward(reward float64) error {
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return errors.New("nn: reward is not finite")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	copy(b.rewardWindow, b.rewardWindow[1:])
	b.rewardWindow[len(b.rewardWindow)-1] = reward
	if !b.learning {
		return nil
	}
	b.age++

	n := b.windowSize
	if b.forwardPasses > b.cfg.TemporalWindow+1 && b.age%max(b.cfg.ExperienceAddEvery, 1) == 0 {
		b.memory.Add(Experience{
			State0:  b.netWindow[n-2],
			Action0: b.actionWindow[n-2],
			Reward0: b.rewardWindow[n-2],
			State1:  b.netWindow[n-1],
		})
	}

	if b.memory.Len() > b.cfg.StartLearnThreshold {
		if err := b.train(b.memory.Sample(b.cfg.BatchSize)); err != nil {
			return fmt.Errorf("nn: train: %w", err)
		}
	}
	return nil
}

// train fits Q(s0, a0) towards r0 + gamma * max Q(s1). Every other output
// keeps its current prediction as target, so only a0 produces an error.
func (b *Brain) train(batch []Experience) error {
	examples := make(training.Examples, 0, len(batch))
	var cost float64
	for _, e := range batch {
		q := b.net.Predict(e.State0)
		target := append([]float64(nil), q...)

		_, next := b.policy(e.State1)
		td := e.Reward0 + b.cfg.Gamma*next - q[e.Action0]
		cost += 0.5 * td * td
		if c := b.cfg.TDErrorClamp; c > 0 {
			td = math.Max(-c, math.Min(c, td))
		}
		target[e.Action0] = q[e.Action0] + td

		examples = append(examples, training.Example{Input: e.State0, Response: target})
	}
	if err := b.trainer.train(b.net, examples); err != nil {
		return err
	}
	if b.cfg.L2Decay > 0 {
		b.decayWeights()
	}

	b.losses = append(b.losses, cost/float64(len(batch)))
	if len(b.losses) > lossWindow {
		b.losses = b.losses[1:]
	}
	return nil
}

// decayWeights shrinks every weight once per batch (L2 regularization)
func (b *Brain) decayWeights() {
	keep := 1 - b.cfg.LearningRate*b.cfg.L2Decay
	weights := b.net.Weights()
	for _, layer := range weights {
		for _, neuron := range layer {
			floats.Scale(keep, neuron)
		}
	}
	b.net.ApplyWeights(weights)
}

// policy returns the greedy action and its Q-value
func (b *Brain) policy(netInput []float64) (agent.Action, float64) {
	q := b.net.Predict(netInput)
	i := floats.MaxIdx(q)
	return agent.Action(i), q[i]
}

func (b *Brain) netInput(state []float64) []float64 {
	w := make([]float64, 0, b.netInputs)
	w = append(w, state...)
	n := b.windowSize
	for k := 0; k < b.cfg.TemporalWindow; k++ {
		w = append(w, b.stateWindow[n-1-k]...)
		oneHot := make([]float64, agent.NumActions)
		oneHot[b.actionWindow[n-1-k]] = 1
		w = append(w, oneHot...)
	}
	return w
}

func (b *Brain) annealedEpsilon() float64 {
	span := float64(b.cfg.LearningStepsTotal - b.cfg.LearningStepsBurnin)
	eps := 1 - float64(b.age-b.cfg.LearningStepsBurnin)/span
	return math.Min(1, math.Max(b.cfg.EpsilonMin, eps))
}

func (b *Brain) randomAction() agent.Action {
	return agent.Action(b.rng.Intn(agent.NumActions))
}

// SetLearning switches between training and greedy play
func (b *Brain) SetLearning(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.learning = on
}

// Age returns the number of learning steps taken
func (b *Brain) Age() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.age
}

// Epsilon returns the exploration rate used by the last Forward
func (b *Brain) Epsilon() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epsilon
}

// AverageLoss returns the mean batch loss over the last batches; ok is
// false before the first batch
func (b *Brain) AverageLoss() (loss float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.losses) == 0 {
		return 0, false
	}
	return floats.Sum(b.losses) / float64(len(b.losses)), true
}

// ExperienceLen returns the replay memory fill
func (b *Brain) ExperienceLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.memory.Len()
}

// encode scales tiles to log2(v)/16, leaving empty cells at 0
func encode(obs observe.Observation) []float64 {
	out := make([]float64, len(obs))
	for i, v := range obs {
		if v > 0 {
			out[i] = math.Log2(v) / tileScale
		}
	}
	return out
}

func shift(window [][]float64, v []float64) [][]float64 {
	copy(window, window[1:])
	window[len(window)-1] = v
	return window
}
