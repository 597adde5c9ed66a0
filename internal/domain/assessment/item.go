package assessment

// Model is the item response model an item is calibrated under.
type Model string

const (
	Model2PL Model = "2PL"
	Model3PL Model = "3PL"
)

// Item is a calibrated, validated item-bank record. Items are built once at
// bank load and shared by pointer; nothing mutates them afterwards.
type Item struct {
	ID     string  `json:"id" yaml:"id"`
	Domain string  `json:"domain" yaml:"domain"`
	Family string  `json:"family" yaml:"family"`
	Model  Model   `json:"model" yaml:"model"`
	A      float64 `json:"a" yaml:"a"`
	B      float64 `json:"b" yaml:"b"`
	C      float64 `json:"c" yaml:"c"`
	Anchor bool    `json:"anchor,omitempty" yaml:"anchor,omitempty"`
}

// Guessing returns the lower asymptote the item is scored with; 2PL items
// ignore any stored c.
func (it *Item) Guessing() float64 {
	if it == nil || it.Model != Model3PL {
		return 0
	}
	return it.C
}
