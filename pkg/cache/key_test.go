package cache

import (
	"errors"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "query key",
			key:  QueryKey{Query: "what moved the KLCI today"},
			want: "v1:query:first=false:q=what moved the KLCI today",
		},
		{
			name: "query key first message",
			key:  QueryKey{Query: "hello", FirstMessage: true},
			want: "v1:query:first=true:q=hello",
		},
		{
			name: "financial key uppercases ticker",
			key:  FinancialKey{Ticker: "aapl", DataType: "llm_data"},
			want: "v1:financial:ticker=AAPL:type=llm_data",
		},
		{
			name: "financial key detailed data type",
			key:  FinancialKey{Ticker: "MAYBANK", DataType: "detailed"},
			want: "v1:financial:ticker=MAYBANK:type=detailed",
		},
		{
			name: "ticker key lowercases and trims company name",
			key:  TickerKey{CompanyName: "  Malayan Banking Berhad "},
			want: "v1:ticker:company=malayan banking berhad",
		},
		{
			name: "probe key",
			key:  probeKey{id: "check-42"},
			want: "v1:probe:id=check-42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Same fields must always produce the same canonical key.
func TestKey_Determinism(t *testing.T) {
	keys := []Key{
		QueryKey{Query: "bank earnings outlook", FirstMessage: true},
		FinancialKey{Ticker: "CIMB", DataType: "llm_data"},
		TickerKey{CompanyName: "Public Bank"},
	}

	for _, key := range keys {
		first := key.String()
		for i := 0; i < 10; i++ {
			if got := key.String(); got != first {
				t.Errorf("key %T not deterministic: %q != %q", key, got, first)
			}
		}
	}
}

func TestKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{"valid query", QueryKey{Query: "q"}, false},
		{"empty query", QueryKey{}, true},
		{"whitespace query", QueryKey{Query: "   "}, true},
		{"valid financial", FinancialKey{Ticker: "AAPL", DataType: "llm_data"}, false},
		{"empty ticker", FinancialKey{DataType: "llm_data"}, true},
		{"empty data type", FinancialKey{Ticker: "AAPL"}, true},
		{"valid ticker key", TickerKey{CompanyName: "Tenaga"}, false},
		{"empty company", TickerKey{}, true},
		{"empty probe id", probeKey{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKey) {
					t.Errorf("Validate() = %v, want ErrInvalidKey", err)
				}
			} else if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

// Keys from different domains must never collide even with adversarial
// field values.
func TestKey_DomainSeparation(t *testing.T) {
	a := QueryKey{Query: "AAPL"}.String()
	b := FinancialKey{Ticker: "AAPL", DataType: "llm_data"}.String()
	c := TickerKey{CompanyName: "AAPL"}.String()

	if a == b || a == c || b == c {
		t.Errorf("domain keys collide: %q %q %q", a, b, c)
	}
}
