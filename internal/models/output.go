package models

// OutputSpec describes a single requested output file. Height is the maximum
// dimension applied to both axes via uniform scaling; zero means no resize.
type OutputSpec struct {
	Path   string `json:"path"`
	Height int    `json:"height"`
}
