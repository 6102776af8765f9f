package autoencoder

import (
	"fmt"
)

// Pool is an insertion-ordered set of named models. Order matters: the
// detector breaks accuracy ties in favour of the earlier model.
type Pool struct {
	models []Model
	index  map[string]int
}

func NewPool() *Pool {
	return &Pool{index: make(map[string]int)}
}

func (p *Pool) Register(m Model) error {
	if _, exists := p.index[m.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name())
	}
	p.index[m.Name()] = len(p.models)
	p.models = append(p.models, m)
	return nil
}

func (p *Pool) Get(name string) (Model, bool) {
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.models[i], true
}

// Models returns the registered models in insertion order.
func (p *Pool) Models() []Model {
	return append([]Model(nil), p.models...)
}

func (p *Pool) Len() int {
	return len(p.models)
}

// BuildPool creates one model per variant. Each model gets its own seed so
// no random state is shared between them.
func BuildPool(variants []Variant, inputDim int, cfg Config) (*Pool, error) {
	pool := NewPool()
	for i, variant := range variants {
		modelCfg := cfg
		modelCfg.Seed = cfg.Seed + int64(i)

		m, err := New(variant, "", inputDim, modelCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Register(m); err != nil {
			return nil, err
		}
	}
	return pool, nil
}
