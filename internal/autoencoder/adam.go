package autoencoder

import "math"

type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int
}

func newAdam(lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
}

// step applies the accumulated gradients averaged over batch samples and
// clears them.
func (o *adam) step(layers []*dense, batch int) {
	if batch == 0 {
		return
	}
	o.t++
	scale := 1 / float64(batch)
	lrT := o.lr * math.Sqrt(1-math.Pow(o.beta2, float64(o.t))) / (1 - math.Pow(o.beta1, float64(o.t)))

	for _, l := range layers {
		o.update(l.w, l.gw, l.mw, l.vw, scale, lrT)
		o.update(l.b, l.gb, l.mb, l.vb, scale, lrT)
		l.zeroGrad()
	}
}

func (o *adam) update(params, grads, m, v []float64, scale, lrT float64) {
	for i, g := range grads {
		g *= scale
		m[i] = o.beta1*m[i] + (1-o.beta1)*g
		v[i] = o.beta2*v[i] + (1-o.beta2)*g*g
		params[i] -= lrT * m[i] / (math.Sqrt(v[i]) + o.eps)
	}
}
