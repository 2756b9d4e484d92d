package nn

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	deep "github.com/patrikeh/go-deep"

	"tileagent/internal/agent"
	"tileagent/internal/config"
)

// checkpoint is the on-disk form of a Brain
type checkpoint struct {
	NumStates int             `json:"num_states"`
	Age       int             `json:"age"`
	Network   json.RawMessage `json:"network"`
}

// Save writes the network weights and learning age to path
func (b *Brain) Save(path string) error {
	b.mu.Lock()
	net, err := b.net.Marshal()
	cp := checkpoint{NumStates: b.numStates, Age: b.age, Network: net}
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal network: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load restores a brain saved with Save. cfg supplies the training
// hyperparameters; the network layout comes from the file.
func Load(path string, cfg config.ModelConfig, seed int64) (*Brain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	net, err := deep.Unmarshal(cp.Network)
	if err != nil {
		return nil, fmt.Errorf("restore network %s: %w", path, err)
	}
	// the initializer is not serialized
	net.Config.Weight = deep.NewNormal(0.1, 0.0)

	want := cp.NumStates*(cfg.TemporalWindow+1) + agent.NumActions*cfg.TemporalWindow
	if cp.NumStates < 1 || net.Config.Inputs != want {
		return nil, fmt.Errorf("checkpoint %s: network takes %d inputs, temporal window %d needs %d",
			path, net.Config.Inputs, cfg.TemporalWindow, want)
	}

	b := newBrain(cfg, cp.NumStates, net, seed)
	b.age = cp.Age
	return b, nil
}
