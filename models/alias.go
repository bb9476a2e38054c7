package models

import "strings"

// Alias maps a lower-cased company name or nickname to a trading symbol
type Alias struct {
	Name   string `json:"name" yaml:"name"`
	Symbol string `json:"symbol" yaml:"symbol"`
}

// NormalizeAlias trims and lower-cases the name and upper-cases the symbol
func NormalizeAlias(name, symbol string) Alias {
	return Alias{
		Name:   strings.ToLower(strings.TrimSpace(name)),
		Symbol: strings.ToUpper(strings.TrimSpace(symbol)),
	}
}
