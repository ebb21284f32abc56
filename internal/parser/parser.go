// Package parser converts raw host plugin arguments into typed events.
package parser

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/OCAP2/parachute/internal/util"
)

// parseIntFromFloat parses a string that may be an integer ("3") or a float
// ("3.00") into int64. Some host scripting layers only have float numbers.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// Parser provides pure []string -> event struct conversion.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func (p *Parser) arg(data []string, i int, name string) (string, error) {
	if i >= len(data) {
		return "", fmt.Errorf("missing %s argument (got %d args)", name, len(data))
	}
	return data[i], nil
}

func (p *Parser) slotArg(data []string, i int, name string) (int, error) {
	raw, err := p.arg(data, i, name)
	if err != nil {
		return 0, err
	}
	v, err := parseIntFromFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("error converting %s to int: %w", name, err)
	}
	return int(v), nil
}

// ParseSlot parses a single player slot argument.
func (p *Parser) ParseSlot(data []string) (int, error) {
	util.CleanArgs(data)
	slot, err := p.slotArg(data, 0, "slot")
	if err != nil {
		return 0, err
	}
	if slot < 0 {
		return 0, fmt.Errorf("invalid slot %d", slot)
	}
	return slot, nil
}
