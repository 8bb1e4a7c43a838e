package service

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event types published through the outbox.
const (
	EventMarketRegistered = "market_registered"
	EventFunded           = "funded"
	EventDeposited        = "deposited"
	EventWithdrawn        = "withdrawn"
	EventPlaced           = "placed"
	EventCancelled        = "cancelled"
	EventFilled           = "filled"
)

// eventNamespace seeds the name-based event IDs, so replaying a command
// yields the same IDs it had the first time.
var eventNamespace = uuid.MustParse("8f1d3c52-6a0e-4c1b-9a57-0b7f2e9d4c11")

type Event struct {
	V      int    `json:"v"`
	ID     string `json:"id"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Time   int64  `json:"time"`
	Market string `json:"market,omitempty"`

	Side    string `json:"side,omitempty"`
	OrderID string `json:"order_id,omitempty"`
	Price   uint64 `json:"price,omitempty"`
	Size    uint64 `json:"size,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Taker   string `json:"taker,omitempty"`

	Asset string `json:"asset,omitempty"`
	Base  uint64 `json:"base,omitempty"`
	Quote uint64 `json:"quote,omitempty"`

	MakerDone   bool   `json:"maker_done,omitempty"`
	ScaleFactor uint64 `json:"scale_factor,omitempty"`
}

func eventID(seq uint64, index int) string {
	return uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%d/%d", seq, index))).String()
}

// emitter numbers the events of one command.
type emitter struct {
	seq  uint64
	time int64
	n    int
	emit func(key, payload []byte)
}

func (e *emitter) add(ev Event) error {
	ev.V = 1
	ev.ID = eventID(e.seq, e.n)
	ev.Seq = e.seq
	ev.Time = e.time
	e.n++

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	e.emit([]byte(ev.Market), payload)
	return nil
}
