package nn

import (
	deep "github.com/patrikeh/go-deep"
	"github.com/patrikeh/go-deep/training"
)

// batchSGD backpropagates a batch and applies the mean gradient through a
// go-deep solver in one update. Buffers are allocated once per network and
// the solver keeps its momentum across batches.
type batchSGD struct {
	solver training.Solver
	deltas [][]float64
	grads  []float64
	iter   int
}

func newBatchSGD(n *deep.Neural, solver training.Solver) *batchSGD {
	deltas := make([][]float64, len(n.Layers))
	for i, l := range n.Layers {
		deltas[i] = make([]float64, len(l.Neurons))
	}
	solver.Init(n.NumWeights())
	return &batchSGD{
		solver: solver,
		deltas: deltas,
		grads:  make([]float64, n.NumWeights()),
	}
}

func (t *batchSGD) train(n *deep.Neural, batch training.Examples) error {
	if len(batch) == 0 {
		return nil
	}
	for i := range t.grads {
		t.grads[i] = 0
	}
	for _, e := range batch {
		if err := n.Forward(e.Input); err != nil {
			return err
		}
		t.backprop(n, e.Response)
		t.accumulate(n)
	}

	t.iter++
	scale := 1 / float64(len(batch))
	var idx int
	for _, l := range n.Layers {
		for _, neuron := range l.Neurons {
			for _, s := range neuron.In {
				s.Weight += t.solver.Update(s.Weight, t.grads[idx]*scale, t.iter, idx)
				idx++
			}
		}
	}
	return nil
}

func (t *batchSGD) backprop(n *deep.Neural, ideal []float64) {
	last := len(n.Layers) - 1
	loss := deep.GetLoss(n.Config.Loss)
	for i, neuron := range n.Layers[last].Neurons {
		t.deltas[last][i] = loss.Df(neuron.Value, ideal[i], neuron.DActivate(neuron.Value))
	}
	for i := last - 1; i >= 0; i-- {
		for j, neuron := range n.Layers[i].Neurons {
			var sum float64
			for k, s := range neuron.Out {
				sum += s.Weight * t.deltas[i+1][k]
			}
			t.deltas[i][j] = neuron.DActivate(neuron.Value) * sum
		}
	}
}

// accumulate adds delta * input for every synapse, bias synapses included
func (t *batchSGD) accumulate(n *deep.Neural) {
	var idx int
	for i, l := range n.Layers {
		for j, neuron := range l.Neurons {
			for _, s := range neuron.In {
				t.grads[idx] += t.deltas[i][j] * s.In
				idx++
			}
		}
	}
}
