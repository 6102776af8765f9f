package autoencoder

import (
	"math"
	"math/rand"
)

type activation int

const (
	linear activation = iota
	relu
	sigmoid
)

func (a activation) apply(z float64) float64 {
	switch a {
	case relu:
		if z > 0 {
			return z
		}
		return 0
	case sigmoid:
		return 1 / (1 + math.Exp(-z))
	default:
		return z
	}
}

// derivative is expressed in terms of the pre-activation z and output y.
func (a activation) derivative(z, y float64) float64 {
	switch a {
	case relu:
		if z > 0 {
			return 1
		}
		return 0
	case sigmoid:
		return y * (1 - y)
	default:
		return 1
	}
}

// dense is a fully connected layer. Weights are stored row-major as out x in.
type dense struct {
	in, out int
	act     activation

	w, b   []float64
	gw, gb []float64

	// Adam moments
	mw, vw []float64
	mb, vb []float64
}

// newDense initializes weights Glorot-uniform and biases to zero.
func newDense(in, out int, act activation, rng *rand.Rand) *dense {
	l := &dense{
		in:  in,
		out: out,
		act: act,
		w:   make([]float64, in*out),
		b:   make([]float64, out),
		gw:  make([]float64, in*out),
		gb:  make([]float64, out),
		mw:  make([]float64, in*out),
		vw:  make([]float64, in*out),
		mb:  make([]float64, out),
		vb:  make([]float64, out),
	}

	limit := math.Sqrt(6 / float64(in+out))
	for i := range l.w {
		l.w[i] = (rng.Float64()*2 - 1) * limit
	}
	return l
}

func (l *dense) forward(x []float64) (z, y []float64) {
	z = make([]float64, l.out)
	y = make([]float64, l.out)
	for o := 0; o < l.out; o++ {
		sum := l.b[o]
		row := l.w[o*l.in : (o+1)*l.in]
		for i, xi := range x {
			sum += row[i] * xi
		}
		z[o] = sum
		y[o] = l.act.apply(sum)
	}
	return z, y
}

// backward accumulates parameter gradients for one sample and returns the
// gradient with respect to the layer input.
func (l *dense) backward(x, z, y, gradY []float64) []float64 {
	gradX := make([]float64, l.in)
	for o := 0; o < l.out; o++ {
		delta := gradY[o] * l.act.derivative(z[o], y[o])
		if delta == 0 {
			continue
		}
		l.gb[o] += delta
		row := l.w[o*l.in : (o+1)*l.in]
		grow := l.gw[o*l.in : (o+1)*l.in]
		for i, xi := range x {
			grow[i] += delta * xi
			gradX[i] += delta * row[i]
		}
	}
	return gradX
}

func (l *dense) zeroGrad() {
	for i := range l.gw {
		l.gw[i] = 0
	}
	for i := range l.gb {
		l.gb[i] = 0
	}
}

// stack is a feed-forward chain of dense layers. l1 holds an optional
// activity penalty coefficient per layer output.
type stack struct {
	layers []*dense
	l1     []float64
}

func newStack(widths []int, acts []activation, rng *rand.Rand) *stack {
	s := &stack{
		layers: make([]*dense, len(acts)),
		l1:     make([]float64, len(acts)),
	}
	for i, act := range acts {
		s.layers[i] = newDense(widths[i], widths[i+1], act, rng)
	}
	return s
}

// trace keeps the intermediate values of one forward pass for backprop.
type trace struct {
	inputs [][]float64
	z      [][]float64
	y      [][]float64
}

func (t *trace) output() []float64 {
	return t.y[len(t.y)-1]
}

func (s *stack) forward(x []float64) *trace {
	t := &trace{
		inputs: make([][]float64, len(s.layers)),
		z:      make([][]float64, len(s.layers)),
		y:      make([][]float64, len(s.layers)),
	}
	in := x
	for i, l := range s.layers {
		t.inputs[i] = in
		t.z[i], t.y[i] = l.forward(in)
		in = t.y[i]
	}
	return t
}

// penalty returns the activity regularization term of a forward pass.
func (s *stack) penalty(t *trace) float64 {
	var total float64
	for i, coef := range s.l1 {
		if coef == 0 {
			continue
		}
		for _, v := range t.y[i] {
			total += coef * math.Abs(v)
		}
	}
	return total
}

func (s *stack) backward(t *trace, gradOut []float64) []float64 {
	grad := gradOut
	for i := len(s.layers) - 1; i >= 0; i-- {
		if coef := s.l1[i]; coef != 0 {
			grad = append([]float64(nil), grad...)
			for k, v := range t.y[i] {
				grad[k] += coef * sign(v)
			}
		}
		grad = s.layers[i].backward(t.inputs[i], t.z[i], t.y[i], grad)
	}
	return grad
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
