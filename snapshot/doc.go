// Package snapshot serializes the full latent state of a view so it can
// be persisted to a blobstore and restored losslessly: CRP
// concentration, row assignments, raw data, and per-column component
// statistics including any sampled parameters.
//
// Files are self-describing. A fixed header records the format version,
// the codec that encoded the payload and the compression applied to it,
// and a CRC32 trailer detects accidental corruption.
package snapshot
