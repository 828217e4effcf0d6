//go:build linux

package ebpf

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"go.uber.org/zap"
)

// loader manages BPF object lifecycle: loading programs, creating maps, and
// attaching kprobes/kretprobes to the file I/O syscalls.
type loader struct {
	objs   *fioscopeObjects
	links  []link.Link
	logger *zap.Logger
}

// newLoader creates a loader but does not yet load anything.
func newLoader(logger *zap.Logger) *loader {
	return &loader{logger: logger}
}

// load loads the compiled eBPF objects (programs + maps) into the kernel.
func (l *loader) load() error {
	l.objs = &fioscopeObjects{}
	if err := loadFioscopeObjects(l.objs, &ebpf.CollectionOptions{}); err != nil {
		return fmt.Errorf("load BPF objects: %w", err)
	}
	return nil
}

// attachSyscallProbes attaches kprobes/kretprobes to the open/read/write/
// close family. Entry probes capture arguments (path, fd, count); return
// probes capture the syscall's result (the new fd for open, the byte count
// actually moved for read).
func (l *loader) attachSyscallProbes() error {
	type probeSpec struct {
		name  string
		prog  *ebpf.Program
		isRet bool
	}

	probes := []probeSpec{
		{"sys_openat", l.objs.KprobeOpenat, false},
		{"sys_openat", l.objs.KretprobeOpenat, true},
		{"sys_open", l.objs.KprobeOpen, false},
		{"sys_open", l.objs.KretprobeOpen, true},
		{"sys_read", l.objs.KprobeRead, false},
		{"sys_read", l.objs.KretprobeRead, true},
		{"sys_pread64", l.objs.KprobeRead, false},
		{"sys_pread64", l.objs.KretprobeRead, true},
		{"sys_write", l.objs.KprobeWrite, false},
		{"sys_write", l.objs.KretprobeWrite, true},
		{"sys_pwrite64", l.objs.KprobeWrite, false},
		{"sys_pwrite64", l.objs.KretprobeWrite, true},
		{"sys_close", l.objs.KprobeClose, false},
	}

	for _, p := range probes {
		if p.prog == nil {
			l.logger.Debug("skipping nil program", zap.String("probe", p.name))
			continue
		}

		var lnk link.Link
		var err error

		if p.isRet {
			lnk, err = link.Kretprobe(p.name, p.prog, nil)
		} else {
			lnk, err = link.Kprobe(p.name, p.prog, nil)
		}
		if err != nil {
			// Try __x64_ prefix for newer kernels
			altName := "__x64_" + p.name
			if p.isRet {
				lnk, err = link.Kretprobe(altName, p.prog, nil)
			} else {
				lnk, err = link.Kprobe(altName, p.prog, nil)
			}
			if err != nil {
				return fmt.Errorf("attach kprobe %s: %w", p.name, err)
			}
			l.logger.Debug("attached with alternate name", zap.String("name", altName))
		}

		l.links = append(l.links, lnk)
		kind := "kprobe"
		if p.isRet {
			kind = "kretprobe"
		}
		l.logger.Debug("attached probe", zap.String("kind", kind), zap.String("name", p.name))
	}

	return nil
}

// setTracingEnabled writes the tracing toggle to the BPF map.
func (l *loader) setTracingEnabled(enabled bool) error {
	key := uint32(0)
	var val uint32
	if enabled {
		val = 1
	}
	return l.objs.TracingEnabled.Put(key, val)
}

// isTracingEnabled reads the tracing toggle from the BPF map.
func (l *loader) isTracingEnabled() bool {
	key := uint32(0)
	var val uint32
	if err := l.objs.TracingEnabled.Lookup(key, &val); err != nil {
		return false
	}
	return val == 1
}

// addPIDFilter adds a PID to the filter map, restricting tracing to it.
func (l *loader) addPIDFilter(pid uint32) error {
	val := uint8(1)
	return l.objs.PidFilter.Put(pid, val)
}

// removePIDFilter removes a PID from the filter map.
func (l *loader) removePIDFilter(pid uint32) error {
	return l.objs.PidFilter.Delete(pid)
}

// fdPathKey mirrors the BPF struct fd_path_key for map lookups: the
// kernel-side mirror of core.DescriptorTable, populated by the openat
// kretprobe and consulted by the read/write kprobes so events carry a path
// instead of a bare fd.
type fdPathKey struct {
	PID uint32
	FD  int32
}

// lookupPath retrieves the path recorded for a {pid, fd} pair.
func (l *loader) lookupPath(pid uint32, fd int32) (string, error) {
	key := fdPathKey{PID: pid, FD: fd}
	var val [256]byte
	if err := l.objs.FdPathMap.Lookup(key, &val); err != nil {
		return "", err
	}
	n := 0
	for n < len(val) && val[n] != 0 {
		n++
	}
	return string(val[:n]), nil
}

// close releases all probes, links, and BPF objects.
func (l *loader) close() {
	for _, lnk := range l.links {
		lnk.Close()
	}
	l.links = nil

	if l.objs != nil {
		l.objs.Close()
		l.objs = nil
	}
}

// eventRingBuf returns the ring buffer map for the event reader.
func (l *loader) eventRingBuf() *ebpf.Map {
	return l.objs.Events
}
