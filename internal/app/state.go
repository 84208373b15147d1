package app

// AppState represents the different views of the run screen.
type AppState int

const (
	Running AppState = iota
	Finished
	ShowError
	Exiting
)
