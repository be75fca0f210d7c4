package model

// Defaults applied to optional symbol attributes.
const (
	DefaultSession    = "24x7"
	DefaultTimezone   = "Etc/UTC"
	DefaultType       = "stock"
	DefaultPriceScale = int64(100)
)

// SymbolRecord is the metadata entry of one tradable instrument.
type SymbolRecord struct {
	Name        string `json:"symbol"`
	Exchange    string `json:"exchange"`
	Description string `json:"description,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Session     string `json:"session,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Type        string `json:"type,omitempty"`
	PriceScale  int64  `json:"pricescale,omitempty"`
}

// WithDefaults fills unset optional attributes.
func (r SymbolRecord) WithDefaults() SymbolRecord {
	if r.Session == "" {
		r.Session = DefaultSession
	}
	if r.Timezone == "" {
		r.Timezone = DefaultTimezone
	}
	if r.Type == "" {
		r.Type = DefaultType
	}
	if r.PriceScale == 0 {
		r.PriceScale = DefaultPriceScale
	}
	return r
}

// Equal reports whether two records describe the same metadata once defaults apply.
func (r SymbolRecord) Equal(other SymbolRecord) bool {
	return r.WithDefaults() == other.WithDefaults()
}
