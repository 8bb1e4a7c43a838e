package entry

import "time"

// RecordType is the command kind carried by a record.
type RecordType uint8

const (
	RecordRegisterMarket RecordType = iota + 1
	RecordFund
	RecordDeposit
	RecordWithdraw
	RecordPlaceLimit
	RecordCancel
	RecordFillMarket
)

func (t RecordType) String() string {
	switch t {
	case RecordRegisterMarket:
		return "register_market"
	case RecordFund:
		return "fund"
	case RecordDeposit:
		return "deposit"
	case RecordWithdraw:
		return "withdraw"
	case RecordPlaceLimit:
		return "place_limit"
	case RecordCancel:
		return "cancel"
	case RecordFillMarket:
		return "fill_market"
	default:
		return "unknown"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
