package sd

// Constant is an immutable named numeric parameter. It may be overridden
// exactly once before the run starts via Network.OverrideConstant.
type Constant struct {
	name       string
	value      float64
	overridden bool
}

func (c *Constant) Name() string           { return c.name }
func (c *Constant) Eval(t float64) float64 { return c.value }

// Constant registers a named constant.
func (n *Network) Constant(name string, v float64) *Constant {
	c := &Constant{name: name, value: v}
	if n.register(name) {
		n.constants[name] = c
	}
	return c
}

// Gateway is a settable converter: the write-point where externally
// aggregated agent demand enters the network. It holds zero until written.
type Gateway struct {
	name  string
	value float64
}

func (g *Gateway) Name() string           { return g.name }
func (g *Gateway) Eval(t float64) float64 { return g.value }

// Set overwrites the gateway's current value.
func (g *Gateway) Set(v float64) { g.value = v }

// Gateway registers a named gateway.
func (n *Network) Gateway(name string) *Gateway {
	g := &Gateway{name: name}
	if n.register(name) {
		n.gateways[name] = g
	}
	return g
}

// Converter is a named derived quantity computed from its dependencies at
// a given time. It is stateless given its inputs; deps name the entities
// the closure reads, for finalize-time cycle and dangling-name checks.
type Converter struct {
	name string
	deps []string
	fn   func(t float64) float64
}

func (c *Converter) Name() string           { return c.name }
func (c *Converter) Eval(t float64) float64 { return c.fn(t) }

// Converter registers a named converter with its dependency names.
func (n *Network) Converter(name string, fn func(t float64) float64, deps ...string) *Converter {
	c := &Converter{name: name, deps: deps, fn: fn}
	if n.register(name) {
		n.converters[name] = c
	}
	return c
}

// Stock is a named accumulator integrated across fixed steps from its net
// flow. Eval returns the current step's value regardless of t, so step-i
// converters always read step-i state.
type Stock struct {
	name  string
	value float64
	flow  func(t float64) float64
}

func (s *Stock) Name() string           { return s.name }
func (s *Stock) Eval(t float64) float64 { return s.value }

// Value returns the current step's value.
func (s *Stock) Value() float64 { return s.value }

// SetFlow installs the stock's net-flow equation.
func (s *Stock) SetFlow(fn func(t float64) float64) { s.flow = fn }

// Stock registers a named stock with an initial value.
func (n *Network) Stock(name string, initial float64) *Stock {
	s := &Stock{name: name, value: initial}
	if n.register(name) {
		n.stocks[name] = s
		n.stockOrder = append(n.stockOrder, s)
	}
	return s
}
