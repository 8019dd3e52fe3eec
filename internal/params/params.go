// Package params resolves job parameters. The host exports every parameter
// as an environment variable as well, and an exported value wins over the
// parsed params record.
package params

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mattjoyce/xyrun/internal/protocol"
)

// Source tags where a listed value came from.
const (
	SourceEnv   = "env"
	SourceParam = "param"
)

// Resolver looks parameters up in the environment and then in the job.
type Resolver struct {
	job       *protocol.JobContext
	lookupEnv func(string) (string, bool)
	environ   func() []string
}

// NewResolver returns a resolver over the process environment.
func NewResolver(job *protocol.JobContext) *Resolver {
	return &Resolver{job: job, lookupEnv: os.LookupEnv, environ: os.Environ}
}

// Lookup returns the environment value of name if set, else the job
// parameter, else def.
func (r *Resolver) Lookup(name string, def any) any {
	if v, ok := r.lookupEnv(name); ok {
		return v
	}
	if v, ok := r.job.Param(name); ok {
		return v
	}
	return def
}

// Entry is one row of a Listing.
type Entry struct {
	Source string
	Name   string
	Value  string
}

// Entries returns every environment variable and every job parameter,
// sorted by source then name.
func (r *Resolver) Entries() []Entry {
	var entries []Entry
	for _, kv := range r.environ() {
		name, value, _ := strings.Cut(kv, "=")
		if name == "" {
			continue
		}
		entries = append(entries, Entry{Source: SourceEnv, Name: name, Value: value})
	}
	if r.job != nil {
		for name, value := range r.job.Params {
			entries = append(entries, Entry{Source: SourceParam, Name: name, Value: display(value)})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Source != entries[j].Source {
			return entries[i].Source < entries[j].Source
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Listing renders Entries as a text table. It is a debugging aid and not
// part of the envelope contract.
func (r *Resolver) Listing() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Source", "Name", "Value"})
	for _, e := range r.Entries() {
		tw.AppendRow(table.Row{e.Source, e.Name, e.Value})
	}
	return tw.Render()
}

func display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number, bool, float64, int, int64:
		return fmt.Sprint(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
