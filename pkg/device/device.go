// Package device describes the GPU devices benchmark jobs are scheduled onto.
package device

import "fmt"

// Device represents a single GPU on the benchmark host.
type Device struct {
	ID    int    `json:"id"`
	Brand string `json:"brand"`
	UUID  string `json:"uuid"`
}

func (d Device) String() string {
	return fmt.Sprintf("gpu%d (%s)", d.ID, d.Brand)
}
