// Package dedupe remembers recently applied change fingerprints so the
// ingestion channel can drop at-least-once redeliveries and the echo of a
// write the mutation gateway already applied locally.
package dedupe
