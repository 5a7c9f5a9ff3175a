// Package schemas holds the JSON Schemas for data exchanged with external collaborators.
package schemas

import _ "embed"

// RawJobRecord is the schema every scrape-feed line must satisfy
//
//go:embed raw_job_record.schema.json
var RawJobRecord string
