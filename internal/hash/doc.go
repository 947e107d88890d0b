// Package hash provides hardware-accelerated checksums for data integrity.
//
// Journal record framing uses CRC32-Castagnoli (CRC32C), which offers:
//
//   - Hardware acceleration on x86 (SSE4.2) and ARM (CRC extension)
//   - Superior error detection compared to CRC32-IEEE
//   - Industry adoption (iSCSI, Btrfs, RocksDB, LevelDB)
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
