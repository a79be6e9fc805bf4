// Package runid produces the identifiers that name a crawl run's outputs.
package runid

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Generator yields a sortable, human-readable identifier per run
type Generator interface {
	Next() string
}

// Clock builds IDs of the form YYYY-MM-DD/HH_MM_SS-<pid> in UTC
type Clock struct {
	Now func() time.Time
	PID int
}

// New returns a Clock using the current time and process ID
func New() Clock {
	return Clock{Now: time.Now, PID: os.Getpid()}
}

func (c Clock) Next() string {
	t := c.Now().UTC()
	return fmt.Sprintf("%s/%s-%d", t.Format("2006-01-02"), t.Format("15_04_05"), c.PID)
}

// Fixed always returns the same ID
type Fixed string

func (f Fixed) Next() string {
	return string(f)
}

// Token makes an ID safe to embed in a file name
func Token(id string) string {
	return strings.ReplaceAll(id, "/", "-")
}
