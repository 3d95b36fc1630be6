package archive

import (
	"fmt"
	"sort"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

const loghubBase = "https://zenodo.org/records/8196385/files/"

var catalog = map[model.LogType]string{
	model.LogTypeWindows: loghubBase + "Windows.tar.gz?download=1",
	model.LogTypeLinux:   loghubBase + "Linux.tar.gz?download=1",
	model.LogTypeMac:     loghubBase + "Mac.tar.gz?download=1",
	model.LogTypeSSH:     loghubBase + "SSH.tar.gz?download=1",
	model.LogTypeApache:  loghubBase + "Apache.tar.gz?download=1",
}

// URLs returns the archive URLs for logType. LogTypeAll selects every entry,
// ordered by log type.
func URLs(logType model.LogType) ([]string, error) {
	if logType.IsAll() {
		keys := make([]string, 0, len(catalog))
		for k := range catalog {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, catalog[model.LogType(k)])
		}
		return out, nil
	}
	u, ok := catalog[model.ParseLogType(string(logType))]
	if !ok {
		return nil, fmt.Errorf("archive: no archive for log type %q", logType)
	}
	return []string{u}, nil
}
