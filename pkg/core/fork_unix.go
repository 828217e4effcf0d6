//go:build (linux || darwin) && cgo

package core

/*
#include <pthread.h>

void fioscope_core_prefork(void);
void fioscope_core_postfork_parent(void);
void fioscope_core_postfork_child(void);

static int fioscope_core_install_atfork(void) {
	return pthread_atfork(fioscope_core_prefork, fioscope_core_postfork_parent, fioscope_core_postfork_child);
}
*/
import "C"

// installAtfork registers this package's prepare/parent/child callbacks
// with the host process's pthread_atfork list. This only matters when the
// package is loaded into a process (typically via -buildmode=c-shared)
// that calls fork() while multiple OS threads are running, which is
// exactly the situation the double buffer and sharded maps are built to
// survive: every lock they hold must be acquired before fork() and
// released again before either side resumes, or the child can inherit a
// bucket frozen mid-mutation.
func installAtfork() {
	if rv := C.fioscope_core_install_atfork(); rv != 0 {
		// pthread_atfork essentially never fails on Linux/Darwin (EAGAIN
		// only once glibc's internal handler list is exhausted, which
		// this single registration cannot trigger). Surfacing this via
		// panic would crash the host process the shared library was
		// loaded into, so it is dropped; callers who fork from multiple
		// threads without this hook installed will see the documented
		// hazard directly instead.
		_ = rv
	}
}

//export fioscope_core_prefork
func fioscope_core_prefork() {
	runPrefork()
}

//export fioscope_core_postfork_parent
func fioscope_core_postfork_parent() {
	runPostforkParent()
}

//export fioscope_core_postfork_child
func fioscope_core_postfork_child() {
	runPostforkChild()
}
