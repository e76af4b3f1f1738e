package keyframe

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/heimdex-render/internal/project"
)

func TestSynthesize_ConstantCases(t *testing.T) {
	zero := Synthesize(project.Static(0.75))
	one := Synthesize(project.Animated(0.2, project.Keyframe{Time: 3, Value: 0.9}))

	for _, tt := range []float64{-5, 0, 1.5, 3, 100} {
		assert.Equal(t, 0.75, zero.Eval(tt))
		assert.Equal(t, 0.9, one.Eval(tt), "single keyframe wins over static value")
	}
	assert.Equal(t, "0.75", zero.Expr(4, "t"))
	assert.Equal(t, "0.9", one.Expr(4, "t"))
}

func TestSynthesize_PiecewiseLinear(t *testing.T) {
	c := Synthesize(project.Animated(0,
		project.Keyframe{Time: 1, Value: 10},
		project.Keyframe{Time: 3, Value: 30},
		project.Keyframe{Time: 4, Value: -10},
	))

	cases := []struct {
		t, want float64
	}{
		{0, 10},
		{1, 10},
		{2, 20},
		{3, 30},
		{3.5, 10},
		{4, -10},
		{9, -10},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, c.Eval(tc.t), 1e-9, "Eval(%v)", tc.t)
	}
}

func TestExpr_MatchesEval(t *testing.T) {
	c := Synthesize(project.Animated(0,
		project.Keyframe{Time: 0, Value: 0},
		project.Keyframe{Time: 0.5, Value: 1},
		project.Keyframe{Time: 2, Value: 0.25},
	))

	const origin = 1.5
	expr := c.Expr(origin, "t")

	for i := 0; i <= 80; i++ {
		tt := float64(i) * 0.05
		got, err := evalExpr(expr, tt)
		require.NoError(t, err, expr)
		assert.InDelta(t, c.Eval(tt-origin), got, 1e-9, "t=%v expr=%s", tt, expr)
	}
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "1.5", Number(1.5))
	assert.Equal(t, "(-2)", Number(-2))
	assert.Equal(t, "0.1", Number(0.1))
}

// evalExpr evaluates the subset of the ffmpeg expression language the curve
// renderer emits: numbers, t, + - * /, parentheses, if() and lt().
func evalExpr(src string, t float64) (float64, error) {
	p := &exprParser{src: src, t: t}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.src) {
		return 0, fmt.Errorf("trailing input at %d", p.pos)
	}
	return v, nil
}

type exprParser struct {
	src string
	pos int
	t   float64
}

func (p *exprParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at %d in %s", c, p.pos, p.src)
	}
	p.pos++
	return nil
}

func (p *exprParser) expr() (float64, error) {
	v, err := p.term()
	if err != nil {
		return 0, err
	}
	for p.peek() == '+' || p.peek() == '-' {
		op := p.peek()
		p.pos++
		r, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			v += r
		} else {
			v -= r
		}
	}
	return v, nil
}

func (p *exprParser) term() (float64, error) {
	v, err := p.factor()
	if err != nil {
		return 0, err
	}
	for p.peek() == '*' || p.peek() == '/' {
		op := p.peek()
		p.pos++
		r, err := p.factor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			v *= r
		} else {
			v /= r
		}
	}
	return v, nil
}

func (p *exprParser) factor() (float64, error) {
	c := p.peek()
	switch {
	case c == '-':
		p.pos++
		v, err := p.factor()
		return -v, err
	case c == '(':
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		return v, p.expect(')')
	case c >= '0' && c <= '9' || c == '.':
		start := p.pos
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.' || p.src[p.pos] == 'e') {
			p.pos++
		}
		return strconv.ParseFloat(p.src[start:p.pos], 64)
	}

	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= 'a' && p.src[p.pos] <= 'z' {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "t" {
		return p.t, nil
	}
	if err := p.expect('('); err != nil {
		return 0, err
	}
	var args []float64
	for {
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		args = append(args, v)
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expect(')'); err != nil {
		return 0, err
	}

	switch {
	case name == "lt" && len(args) == 2:
		if args[0] < args[1] {
			return 1, nil
		}
		return 0, nil
	case name == "if" && len(args) == 3:
		if args[0] != 0 {
			return args[1], nil
		}
		return args[2], nil
	}
	return 0, fmt.Errorf("unknown function %s/%d", name, len(args))
}
