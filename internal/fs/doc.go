// Package fs abstracts file access for the journal and the local blob
// store so tests can inject failures.
//
//   - [LocalFS] is the production implementation backed by the os package.
//   - [FaultyFS] wraps another FileSystem and injects write, sync or close
//     errors per file pattern, for crash and torn-write tests.
//
// Production code uses fs.Default:
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
//
// Operations take no context.Context: local file syscalls are fast and not
// interruptible anyway. Remote stores with real cancellation live in the
// blobstore package.
package fs
