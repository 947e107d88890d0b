// Package persistence provides the binary snapshot format shared by
// memory snapshots and the run archive.
//
// A snapshot file is a fixed-size little-endian FileHeader followed by a
// single payload block. The header carries the payload length, the
// compression algorithm and a CRC32 of the payload, so corrupted or
// truncated files are rejected on load.
package persistence
