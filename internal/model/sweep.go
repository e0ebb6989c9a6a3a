package model

// SweepResult resume uma varredura do scheduler. Falhas por item são
// logadas e não interrompem a varredura.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}
