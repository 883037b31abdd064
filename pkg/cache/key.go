package cache

import (
	"fmt"
	"strings"
)

// keyVersion prefixes every canonical key. Bump when the serialization
// of any key type changes so stale mirror entries are not misread.
const keyVersion = "v1"

// Key is a structured lookup identity for one cache domain. String must
// be deterministic: the same fields always produce the same canonical
// key, independent of process or platform. Embeddings never participate.
type Key interface {
	// String returns the canonical key.
	String() string

	// Validate reports malformed lookup fields (a caller error).
	Validate() error
}

// QueryKey identifies a cached analysis result for a user query.
type QueryKey struct {
	// Query is the raw query text.
	Query string

	// FirstMessage marks the first message of a conversation, which is
	// answered differently and therefore cached separately.
	FirstMessage bool
}

// String generates the canonical key.
// Format: v1:query:first=<bool>:q=<query>
func (k QueryKey) String() string {
	return strings.Join([]string{
		keyVersion, "query",
		fmt.Sprintf("first=%t", k.FirstMessage),
		"q=" + k.Query,
	}, ":")
}

// Validate implements Key.
func (k QueryKey) Validate() error {
	if strings.TrimSpace(k.Query) == "" {
		return fmt.Errorf("%w: query must not be empty", ErrInvalidKey)
	}
	return nil
}

// DefaultDataType is the financial payload variant cached for LLM
// consumption when the caller does not name one.
const DefaultDataType = "llm_data"

// FinancialKey identifies a cached financial-data snapshot.
type FinancialKey struct {
	// Ticker is the stock ticker symbol.
	Ticker string

	// DataType distinguishes payload variants for the same ticker
	// (e.g. "llm_data", "detailed").
	DataType string
}

// String generates the canonical key.
// Format: v1:financial:ticker=<ticker>:type=<data_type>
func (k FinancialKey) String() string {
	return strings.Join([]string{
		keyVersion, "financial",
		"ticker=" + strings.ToUpper(k.Ticker),
		"type=" + k.DataType,
	}, ":")
}

// Validate implements Key.
func (k FinancialKey) Validate() error {
	if strings.TrimSpace(k.Ticker) == "" {
		return fmt.Errorf("%w: ticker must not be empty", ErrInvalidKey)
	}
	if strings.TrimSpace(k.DataType) == "" {
		return fmt.Errorf("%w: data type must not be empty", ErrInvalidKey)
	}
	return nil
}

// TickerKey identifies a cached company-name-to-ticker resolution.
type TickerKey struct {
	// CompanyName is the name being resolved.
	CompanyName string
}

// String generates the canonical key.
// Format: v1:ticker:company=<name>
func (k TickerKey) String() string {
	return strings.Join([]string{
		keyVersion, "ticker",
		"company=" + strings.ToLower(strings.TrimSpace(k.CompanyName)),
	}, ":")
}

// Validate implements Key.
func (k TickerKey) Validate() error {
	if strings.TrimSpace(k.CompanyName) == "" {
		return fmt.Errorf("%w: company name must not be empty", ErrInvalidKey)
	}
	return nil
}

// probeKey is the health-check round-trip key. Unexported: probes are an
// internal concern of HealthCheck and must never collide with domain keys.
type probeKey struct {
	id string
}

func (k probeKey) String() string {
	return keyVersion + ":probe:id=" + k.id
}

func (k probeKey) Validate() error {
	if k.id == "" {
		return fmt.Errorf("%w: probe id must not be empty", ErrInvalidKey)
	}
	return nil
}
