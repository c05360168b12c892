package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type calculatorInput struct {
	Expression string `json:"expression" jsonschema:"description=Arithmetic expression to evaluate"`
}

// CalculatorTool evaluates arithmetic expressions with +, -, *, /, and
// parentheses.
type CalculatorTool struct {
	name string
}

func NewCalculatorTool(name string) *CalculatorTool {
	return &CalculatorTool{name: name}
}

func (t *CalculatorTool) GetName() string { return t.name }

func (t *CalculatorTool) GetDescription() string {
	return "Evaluate an arithmetic expression"
}

func (t *CalculatorTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.GetDescription(),
		InputSchema: GenerateSchema(&calculatorInput{}),
	}
}

func (t *CalculatorTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	var in calculatorInput
	if err := decodeArgs(args, &in); err != nil {
		return ToolResult{}, err
	}

	value, err := evalExpression(in.Expression)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error()}, err
	}
	return ToolResult{
		Success: true,
		Content: strconv.FormatFloat(value, 'f', -1, 64),
	}, nil
}

// exprParser is a recursive descent parser over the expression grammar
// expr = term (('+'|'-') term)*, term = factor (('*'|'/') factor)*,
// factor = number | '(' expr ')' | '-' factor.
type exprParser struct {
	input string
	pos   int
}

func evalExpression(expression string) (float64, error) {
	p := &exprParser{input: expression}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	p.skipSpaces()
	switch p.peek() {
	case '(':
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	case '-':
		p.pos++
		value, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	return p.parseNumber()
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
		} else {
			break
		}
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected a number at position %d", start)
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return value, nil
}

func (p *exprParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) skipSpaces() {
	p.pos += len(p.input[p.pos:]) - len(strings.TrimLeft(p.input[p.pos:], " \t"))
}
