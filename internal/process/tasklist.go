package process

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// tasklistHasPID scans `tasklist /NH /FO CSV` output for a row whose PID
// column equals pid. When no process matches, tasklist prints an
// informational line instead of CSV, which never matches.
func tasklistHasPID(out string, pid int) bool {
	want := strconv.Itoa(pid)
	r := csv.NewReader(strings.NewReader(out))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	for {
		rec, err := r.Read()
		if err != nil {
			return false
		}
		if len(rec) >= 2 && strings.TrimSpace(rec[1]) == want {
			return true
		}
	}
}
