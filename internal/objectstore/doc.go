// Package objectstore keeps stage manifests in an S3-compatible bucket for
// stages whose outputs live in object storage rather than on local disk.
//
// An output directory maps to a key prefix under the configured bucket
// prefix, so "/jobs/S1/transcription" with prefix "audiopipe" stores its
// manifest at "audiopipe/jobs/S1/transcription/.stage-manifest.json".
// Required outputs are checked with a HEAD request on the same mapping.
package objectstore
