package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NAI identifiers of the chain's three reward denominations
const (
	NAISBD   = "@@000000013"
	NAISteem = "@@000000021"
	NAIVests = "@@000000037"
)

var naiSymbols = map[string]struct {
	symbol    string
	precision int
}{
	NAISBD:   {"SBD", 3},
	NAISteem: {"STEEM", 3},
	NAIVests: {"VESTS", 6},
}

// Asset is a chain amount kept as integer satoshis
type Asset struct {
	Amount    int64
	Precision int
	Symbol    string
}

// ParseAsset parses a legacy amount string such as "1.000 SBD"
func ParseAsset(s string) (Asset, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Asset{}, &FormatError{Kind: "asset", Input: s}
	}

	num := parts[0]
	precision := 0
	if i := strings.IndexByte(num, '.'); i >= 0 {
		precision = len(num) - i - 1
		num = num[:i] + num[i+1:]
	}

	amount, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return Asset{}, &FormatError{Kind: "asset", Input: s, Err: err}
	}

	return Asset{Amount: amount, Precision: precision, Symbol: parts[1]}, nil
}

// AssetFromNAI builds an asset from the object form {"amount","precision","nai"}
func AssetFromNAI(obj map[string]interface{}) (Asset, error) {
	nai, _ := obj["nai"].(string)
	info, ok := naiSymbols[nai]
	if !ok {
		return Asset{}, &FormatError{Kind: "asset nai", Input: nai}
	}

	var amount int64
	switch v := obj["amount"].(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Asset{}, &FormatError{Kind: "asset amount", Input: v, Err: err}
		}
		amount = n
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return Asset{}, &FormatError{Kind: "asset amount", Input: v.String(), Err: err}
		}
		amount = n
	case float64:
		amount = int64(v)
	default:
		return Asset{}, &FormatError{Kind: "asset amount", Input: fmt.Sprint(v)}
	}

	precision := info.precision
	switch p := obj["precision"].(type) {
	case float64:
		precision = int(p)
	case json.Number:
		if n, err := p.Int64(); err == nil {
			precision = int(n)
		}
	case int:
		precision = p
	}

	return Asset{Amount: amount, Precision: precision, Symbol: info.symbol}, nil
}

// Float returns the amount as a decimal number
func (a Asset) Float() float64 {
	return float64(a.Amount) / math.Pow10(a.Precision)
}

// Legacy formats the asset as "<amount> <symbol>" with its precision
func (a Asset) Legacy() string {
	return strconv.FormatFloat(a.Float(), 'f', a.Precision, 64) + " " + a.Symbol
}

// IsZero reports whether the asset was never set
func (a Asset) IsZero() bool {
	return a.Symbol == "" && a.Amount == 0
}
