package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f and restarts it in the same goroutine when it panics.
// maxPanics bounds the restarts; a negative value never gives up. It returns
// once f returns normally.
func GoRecoverable(maxPanics int, id string, f func()) {
	for {
		if !runRecovering(id, f) {
			return
		}
		if maxPanics == 0 {
			log.Fatalf(`panics limit exceeded for job "%s", exiting`, id)
			return
		}
		if maxPanics > 0 {
			maxPanics--
		}
		log.WithFields(log.Fields{"job": id, "panics_left": maxPanics}).Debug("recovering job")
	}
}

func runRecovering(id string, f func()) (panicked bool) {
	defer func() {
		if err := recover(); err != nil {
			log.Errorf(`job "%s" panics with message: %v, %s`, id, err, identifyPanic())
			panicked = true
		}
	}()
	f()
	return false
}

func identifyPanic() string {
	var name, file string
	var line int
	var pc [16]uintptr

	n := runtime.Callers(4, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			break
		}
	}

	switch {
	case name != "":
		return fmt.Sprintf("%v:%v", name, line)
	case file != "":
		return fmt.Sprintf("%v:%v", file, line)
	}
	return "unknown"
}
