package models

// TrainStatus is the per-train state shown on a station board.
type TrainStatus string

const (
	TrainIncoming TrainStatus = "Incoming"
	TrainStopped  TrainStatus = "Stopped"
	// TrainEmpty is part of the board contract; the aggregator never emits it.
	TrainEmpty TrainStatus = "Empty"
)

// TrainState is one train's entry on a station board.
type TrainState struct {
	Train string      `json:"train"`
	State TrainStatus `json:"state"`
}

// StationUpdate is the payload of a station-update event.
type StationUpdate struct {
	Station string       `json:"station"`
	State   []TrainState `json:"state"`
}
