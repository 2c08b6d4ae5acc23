package models

import "time"

// Signal labels.
const (
	LabelBuy  = "BUY"
	LabelSell = "SELL"
	LabelWait = "WAIT"
)

// Signal is the derived verdict for one instrument. Stateless: recomputed on
// every fast tick from the latest quote and the latest cached indicators.
type Signal struct {
	Score int    `json:"score"`
	Label string `json:"label"`
}

// SnapshotItem joins everything known about one instrument at publish time.
type SnapshotItem struct {
	Instrument Instrument    `json:"instrument"`
	Quote      *Quote        `json:"quote,omitempty"`
	Indicators *IndicatorSet `json:"indicators,omitempty"`
	Signal     Signal        `json:"signal"`
}

// InstrumentError records a per-instrument failure inside an otherwise
// successful cycle.
type InstrumentError struct {
	Exchange string `json:"exchange"`
	Token    string `json:"token"`
	Reason   string `json:"reason"`
}

// Snapshot is the unit of publication: one complete, self-contained view of
// the tracked universe. Each publish replaces the previous snapshot wholesale.
type Snapshot struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Mode        string            `json:"mode"`
	OK          bool              `json:"ok"`
	Items       []SnapshotItem    `json:"items"`
	Errors      []InstrumentError `json:"errors,omitempty"`
	Count       int               `json:"count"`
	ErrorsCount int               `json:"errorsCount"`
	Message     string            `json:"message,omitempty"`
}

// ErrorSnapshot builds the degraded snapshot published when a fast-loop
// iteration fails as a whole. Subscribers see producer health instead of a
// silent gap.
func ErrorSnapshot(msg string) *Snapshot {
	return &Snapshot{
		GeneratedAt: time.Now().UTC(),
		Mode:        "error",
		OK:          false,
		Items:       []SnapshotItem{},
		Message:     msg,
	}
}
