package models

// OperatingWindow is one open interval for a weekday, times as "HH:MM".
// Weekday follows time.Weekday numbering (Sunday = 0).
type OperatingWindow struct {
	Weekday int    `yaml:"weekday" json:"weekday"`
	Open    string `yaml:"open" json:"open"`
	Close   string `yaml:"close" json:"close"`
}

// Resource описывает бронируемый ресурс: лабораторию или единицу оборудования.
type Resource struct {
	ID         string            `yaml:"id" json:"id"`
	Name       string            `yaml:"name" json:"name"`
	Kind       string            `yaml:"kind" json:"kind"`
	CampusID   string            `yaml:"campus_id" json:"campus_id"`
	Capacity   int               `yaml:"capacity" json:"capacity,omitempty"`
	HourlyRate float64           `yaml:"hourly_rate" json:"hourly_rate"`
	Hours      []OperatingWindow `yaml:"hours" json:"hours,omitempty"`
}
