package main

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	Root    string
	NoColor bool
	Verbose bool
}

// StartFlags Flag structs to decouple cobra from logic for testing.
type StartFlags struct {
	Name string
	Args []string
}

type StatusFlags struct {
	Name string
}

type LogFlags struct {
	Name  string
	Lines int
}

type BatchFlags struct {
	Op    string
	Names []string
}

type SequenceFlags struct {
	Name      string
	Names     []string
	OnFailure string
}

type HistoryFlags struct {
	Name  string
	Limit int
}

type ConfigFlags struct {
	Name string
	Args []string
}

// GlobalConfigFlags carries the single value of a global-config setter.
type GlobalConfigFlags struct {
	Value string
}
