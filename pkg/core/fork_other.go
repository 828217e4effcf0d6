//go:build !((linux || darwin) && cgo)

package core

// installAtfork is a no-op on platforms or builds without cgo access to
// pthread_atfork (Windows, or CGO_ENABLED=0). Handler's lock ordering is
// still correct and still exercised by Prefork/PostforkParent/
// PostforkChild directly — what is missing without cgo is only the OS
// hook that calls them automatically around fork(), which does not exist
// as a concept on Windows and is rarely relevant to a process that never
// forks.
func installAtfork() {}
