package sink

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Predicate evaluates whether a sale's fields satisfy a condition.
type Predicate func(fields map[string]any) bool

// CompilePredicates parses simple expressions into executable predicates.
// Supported operators: ==, !=, >, <, >=, <=, in, contains.
// Numbers are compared exactly. Examples:
//
//	"price_usd > 100"
//	"buyer in 0xaa..,0xbb.."
//	"token_symbol contains ETH"
func CompilePredicates(exprs []string) ([]Predicate, error) {
	var preds []Predicate
	for _, raw := range exprs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// Match reports whether fields satisfy every predicate.
func Match(preds []Predicate, fields map[string]any) bool {
	for _, p := range preds {
		if !p(fields) {
			return false
		}
	}
	return true
}

func compile(expr string) (Predicate, error) {
	if strings.Contains(expr, " in ") {
		parts := strings.SplitN(expr, " in ", 2)
		field := strings.TrimSpace(parts[0])
		rawList := strings.Split(parts[1], ",")
		values := make(map[string]struct{}, len(rawList))
		for _, v := range rawList {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			values[strings.ToLower(v)] = struct{}{}
		}
		if field == "" || len(values) == 0 {
			return nil, fmt.Errorf("invalid in expression: %s", expr)
		}
		return func(fields map[string]any) bool {
			arg, ok := present(fields, field)
			if !ok {
				return false
			}
			_, hit := values[strings.ToLower(fmt.Sprint(arg))]
			return hit
		}, nil
	}

	if strings.Contains(expr, " contains ") {
		parts := strings.SplitN(expr, " contains ", 2)
		field := strings.TrimSpace(parts[0])
		needle := strings.TrimSpace(parts[1])
		if field == "" || needle == "" {
			return nil, fmt.Errorf("invalid contains expression: %s", expr)
		}
		return func(fields map[string]any) bool {
			val, ok := present(fields, field)
			if !ok {
				return false
			}
			return strings.Contains(fmt.Sprint(val), needle)
		}, nil
	}

	var op string
	switch {
	case strings.Contains(expr, "=="):
		op = "=="
	case strings.Contains(expr, "!="):
		op = "!="
	case strings.Contains(expr, ">="):
		op = ">="
	case strings.Contains(expr, "<="):
		op = "<="
	case strings.Contains(expr, ">"):
		op = ">"
	case strings.Contains(expr, "<"):
		op = "<"
	default:
		return nil, fmt.Errorf("unsupported expression: %s", expr)
	}

	parts := strings.SplitN(expr, op, 2)
	field := strings.TrimSpace(parts[0])
	rhsRaw := strings.TrimSpace(parts[1])
	if field == "" || rhsRaw == "" {
		return nil, fmt.Errorf("invalid expression: %s", expr)
	}

	numRHS, rhsIsNum := evaluateNumber(rhsRaw)
	if !rhsIsNum && op != "==" && op != "!=" {
		return nil, fmt.Errorf("ordering needs a number: %s", expr)
	}

	return func(fields map[string]any) bool {
		val, ok := present(fields, field)
		if !ok {
			return false
		}

		if rhsIsNum {
			lhs, ok := toDecimal(val)
			if !ok {
				return false
			}
			c := lhs.Cmp(numRHS)
			switch op {
			case "==":
				return c == 0
			case "!=":
				return c != 0
			case ">":
				return c > 0
			case "<":
				return c < 0
			case ">=":
				return c >= 0
			case "<=":
				return c <= 0
			}
		}

		// Addresses are stored lowercased; compare case-insensitively.
		eq := strings.EqualFold(fmt.Sprint(val), rhsRaw)
		if op == "==" {
			return eq
		}
		return !eq
	}, nil
}

// present returns the field value, treating nil pointers as absent.
func present(fields map[string]any, key string) (any, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil, false
	}
	if n, isBig := v.(*big.Int); isBig && n == nil {
		return nil, false
	}
	return v, true
}

// evaluateNumber parses an exact number, supporting:
// - Simple numbers: "100", "2.5", "1e6", "1_000_000"
// - Multiplication: "5 * 1e18"
func evaluateNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "_", "")

	if strings.Contains(s, "*") {
		parts := strings.Split(s, "*")
		if len(parts) != 2 {
			return decimal.Zero, false
		}
		a, ok1 := evaluateNumber(parts[0])
		b, ok2 := evaluateNumber(parts[1])
		if !ok1 || !ok2 {
			return decimal.Zero, false
		}
		return a.Mul(b), true
	}

	v, err := decimal.NewFromString(s)
	return v, err == nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case *big.Int:
		return decimal.NewFromBigInt(n, 0), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0), true
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		return evaluateNumber(n)
	default:
		return decimal.Zero, false
	}
}
